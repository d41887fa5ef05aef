// Package http is the REST binding of the A2A core: message sending,
// task lifecycle, push config management, streaming, and discovery.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/agentrelay/agentrelay/internal/domain"
)

// headerExtensions carries the extension URIs a caller declares for a
// request; the response echoes back the subset the agent activated.
const headerExtensions = "X-A2A-Extensions"

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request, bodyLimit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if err.Error() == "http: request body too large" {
			writeDomainError(w, domain.ErrInvalidRequest.WithMessage("request body too large"))
		} else {
			writeDomainError(w, domain.ErrInvalidRequest.WithMessage("invalid request body"))
		}
		return v, false
	}
	return v, true
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// queryInt parses an optional integer query parameter. A present but
// malformed value is an invalid request.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, domain.ErrInvalidRequest.WithMessage("%s must be an integer", name)
	}
	return &n, nil
}

// queryBool parses an optional boolean query parameter, defaulting false.
func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domain.ErrInvalidRequest.WithMessage("%s must be a boolean", name)
	}
	return b, nil
}

// declaredExtensions parses the caller's extension header.
func declaredExtensions(r *http.Request) []string {
	raw := r.Header.Get(headerExtensions)
	if raw == "" {
		return nil
	}
	var uris []string
	for _, part := range strings.Split(raw, ",") {
		if uri := strings.TrimSpace(part); uri != "" {
			uris = append(uris, uri)
		}
	}
	return uris
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}
