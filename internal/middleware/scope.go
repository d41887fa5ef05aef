package middleware

import "context"

// DefaultCallerID is the single-caller default used when authentication is
// disabled (local development).
const DefaultCallerID = "00000000-0000-0000-0000-000000000000"

type callerCtxKey struct{}

// WithCallerID returns a context carrying the authenticated caller's
// identity. Every store query is filtered by this value; it is the
// authorization boundary.
func WithCallerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callerCtxKey{}, id)
}

// CallerID returns the caller identity stored in ctx, or DefaultCallerID
// if absent.
func CallerID(ctx context.Context) string {
	if id, ok := ctx.Value(callerCtxKey{}).(string); ok && id != "" {
		return id
	}
	return DefaultCallerID
}
