package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	headerIdempotencyKey   = "Idempotency-Key"
	headerIdempotentReplay = "Idempotent-Replay"

	maxReplayBody = 1 << 20 // 1 MB
)

// storedResponse is the KV representation of a completed response.
type storedResponse struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
}

// Idempotency returns middleware that deduplicates mutating requests using
// the Idempotency-Key header and a NATS JetStream KV store. Keys are
// namespaced per caller so one caller can never replay another's response.
// Server errors are not recorded; a retry with the same key runs again.
func Idempotency(kv jetstream.KeyValue) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(headerIdempotencyKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			key = CallerID(r.Context()) + "." + key

			if entry, err := kv.Get(r.Context(), key); err == nil {
				if replayStored(w, entry.Value()) {
					return
				}
				slog.Warn("idempotency: corrupt cache entry", "key", key)
			}

			buf := &bufferingWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(buf, r)

			if buf.statusCode >= http.StatusInternalServerError || buf.body.Len() > maxReplayBody {
				return
			}
			data, err := json.Marshal(storedResponse{
				StatusCode: buf.statusCode,
				Headers:    w.Header().Clone(),
				Body:       buf.body.Bytes(),
			})
			if err != nil {
				return
			}
			if _, err := kv.Put(r.Context(), key, data); err != nil {
				slog.Warn("idempotency: failed to store response", "key", key, "error", err)
			}
		})
	}
}

// replayStored writes a previously recorded response. Returns false when
// the stored bytes do not decode, so the request runs fresh instead.
func replayStored(w http.ResponseWriter, raw []byte) bool {
	var cached storedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		return false
	}
	for k, vals := range cached.Headers {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set(headerIdempotentReplay, "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
	return true
}

// bufferingWriter tees the response body so it can be stored after the
// handler returns.
type bufferingWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (b *bufferingWriter) WriteHeader(code int) {
	b.statusCode = code
	b.ResponseWriter.WriteHeader(code)
}

func (b *bufferingWriter) Write(p []byte) (int, error) {
	b.body.Write(p)
	return b.ResponseWriter.Write(p)
}
