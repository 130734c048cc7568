// Package obscontext carries request-scoped correlation identifiers.
package obscontext

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	branchIDKey  contextKey = "branch_id"
)

// WithRequestID stores the request identifier in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request identifier, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithBranchID stores the branch identifier in the context.
func WithBranchID(ctx context.Context, branchID string) context.Context {
	if branchID == "" {
		return ctx
	}
	return context.WithValue(ctx, branchIDKey, branchID)
}

// BranchIDFromContext returns the branch identifier, or "".
func BranchIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(branchIDKey).(string); ok {
		return v
	}
	return ""
}
