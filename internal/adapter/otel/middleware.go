package otel

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPMiddleware returns middleware that creates a span per HTTP request.
// Health probes are excluded; they would dominate the trace volume.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	skipHealth := otelhttp.WithFilter(func(r *http.Request) bool {
		return r.URL.Path != "/health"
	})

	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName, skipHealth)
	}
}
