// Package middleware provides HTTP middleware for AgentRelay.
package middleware

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/agentrelay/agentrelay/internal/config"
)

// publicPaths are exempt from authentication. The public agent card is the
// discovery entry point and must stay reachable.
var publicPaths = map[string]bool{
	"/health":                      true,
	"/.well-known/agent-card.json": true,
}

// Auth returns middleware that validates API-key credentials of the form
// "Bearer <keyID>.<secret>" against bcrypt hashes from config and attaches
// the key's caller identity to the request context.
//
// With no keys configured, authentication is disabled and every request
// runs as DefaultCallerID.
func Auth(keys []config.APIKey) func(http.Handler) http.Handler {
	byID := make(map[string]config.APIKey, len(keys))
	for _, k := range keys {
		byID[k.ID] = k
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(byID) == 0 {
				next.ServeHTTP(w, r.WithContext(WithCallerID(r.Context(), DefaultCallerID)))
				return
			}

			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				// WebSocket clients cannot set headers from browsers; accept
				// ?token= on upgrade paths.
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				unauthorized(w, "authorization required")
				return
			}

			keyID, secret, ok := strings.Cut(token, ".")
			if !ok {
				unauthorized(w, "malformed credential")
				return
			}
			key, found := byID[keyID]
			if !found {
				unauthorized(w, "unknown key")
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(key.Hash), []byte(secret)); err != nil {
				unauthorized(w, "invalid credential")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCallerID(r.Context(), key.Caller)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	token := strings.TrimPrefix(h, "Bearer ")
	if token == h {
		return ""
	}
	return token
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
