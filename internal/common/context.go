package common

import (
	"context"

	"github.com/joseph-ayodele/acuvera/internal/entity"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyUser      contextKey = "user"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithUser stores the authenticated user.
func WithUser(ctx context.Context, u *entity.User) context.Context {
	return context.WithValue(ctx, ContextKeyUser, u)
}

// UserFromContext returns the authenticated user, nil when absent.
func UserFromContext(ctx context.Context) *entity.User {
	if u, ok := ctx.Value(ContextKeyUser).(*entity.User); ok {
		return u
	}
	return nil
}
