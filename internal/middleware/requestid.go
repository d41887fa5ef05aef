package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/agentrelay/agentrelay/internal/logger"
)

const headerRequestID = "X-Request-ID"

// maxRequestIDLen caps caller-supplied IDs so they stay log-friendly.
const maxRequestIDLen = 64

// RequestID is HTTP middleware that adopts the caller's X-Request-ID or
// mints a fresh one. The ID rides the request context for log correlation
// and is echoed on the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if !validRequestID(id) {
			id = newRequestID()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validRequestID accepts non-empty IDs of token characters only, so
// caller input never reaches the logs raw.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}

// newRequestID returns a 16-byte random hex string (32 chars).
func newRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
