package middleware

import (
	"net/http"

	"github.com/agentrelay/agentrelay/internal/domain"
	"github.com/agentrelay/agentrelay/internal/domain/a2a"
)

const headerVersion = "A2A-Version"

// Version returns middleware enforcing per-request protocol version
// negotiation. The caller declares a Major.Minor version; an unsupported
// value is rejected rather than silently downgraded. An absent header
// means the server default.
func Version(supported []string, reject func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	if len(supported) == 0 {
		supported = []string{a2a.ProtocolVersion}
	}
	accept := make(map[string]bool, len(supported))
	for _, v := range supported {
		accept[v] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := r.Header.Get(headerVersion)
			if v != "" && !accept[v] {
				reject(w, r, domain.ErrVersionNotSupported.
					WithMessage("protocol version %q is not supported", v).
					WithDetail("requested", v).
					WithDetail("supported", supported))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
