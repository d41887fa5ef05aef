package http

import (
	"log/slog"
	"net/http"

	"github.com/agentrelay/agentrelay/internal/domain"
)

// errorBody is the wire form of a protocol error: a JSON-RPC style numeric
// code for A2A clients, the stable reason string, and a human message.
type errorBody struct {
	Code    int            `json:"code"`
	Reason  string         `json:"reason"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// codeMapping ties each domain error code to its HTTP status and JSON-RPC
// numeric code. The numeric values for the first taxonomy entries follow
// the A2A error space (-32000 block); invalid_request maps to the
// standard JSON-RPC invalid request code.
var codeMapping = map[domain.Code]struct {
	status int
	rpc    int
}{
	domain.CodeTaskNotFound:                 {http.StatusNotFound, -32001},
	domain.CodeTaskNotCancelable:            {http.StatusConflict, -32002},
	domain.CodePushNotificationNotSupported: {http.StatusNotImplemented, -32003},
	domain.CodeUnsupportedOperation:         {http.StatusNotImplemented, -32004},
	domain.CodeContentTypeNotSupported:      {http.StatusUnsupportedMediaType, -32005},
	domain.CodeInvalidAgentResponse:         {http.StatusBadGateway, -32006},
	domain.CodeExtendedCardNotConfigured:    {http.StatusNotFound, -32007},
	domain.CodeExtensionSupportRequired:     {http.StatusBadRequest, -32008},
	domain.CodeVersionNotSupported:          {http.StatusBadRequest, -32009},
	domain.CodeInvalidRequest:               {http.StatusBadRequest, -32600},
}

// WriteError renders a protocol error; it exists for middleware outside
// this package that rejects requests with domain errors.
func WriteError(w http.ResponseWriter, err error) {
	writeDomainError(w, err)
}

// writeDomainError renders a protocol error. Anything that is not a
// *domain.Error is an internal failure: logged server-side, generic to the
// client.
func writeDomainError(w http.ResponseWriter, err error) {
	e, ok := domain.AsError(err)
	if !ok {
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Code:    -32603,
			Reason:  "internal_error",
			Message: "internal server error",
		})
		return
	}

	m, ok := codeMapping[e.Code]
	if !ok {
		m.status, m.rpc = http.StatusInternalServerError, -32603
	}
	writeJSON(w, m.status, errorBody{
		Code:    m.rpc,
		Reason:  string(e.Code),
		Message: e.Message,
		Data:    e.Detail,
	})
}
