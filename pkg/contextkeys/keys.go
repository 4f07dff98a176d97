// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that
// key usage stays discoverable.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithRequestID(ctx, id)
//	id := contextkeys.GetRequestID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error pages, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains the request scoped *logrus.Entry
	// Set by: httputil.LoggingMiddleware
	// Used by: observability.LoggerFrom
	// Type: *logrus.Entry
	LoggerKey Key = "logger"

	// SignInIDKey contains the sign-in message id the request operates on
	// Set by: server handlers once the id is known
	// Used by: Logger fields on flow operations
	// Type: string
	SignInIDKey Key = "signin_id"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithSignInID adds the sign-in message id to the context
func WithSignInID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SignInIDKey, id)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetSignInID retrieves the sign-in message id from context
func GetSignInID(ctx context.Context) string {
	if id, ok := ctx.Value(SignInIDKey).(string); ok {
		return id
	}
	return ""
}
