// Package requestcontext carries request-scoped values from middleware to
// services without importing net/http. The pipeline, the audit publisher
// and the handlers all read the caller identity and clock from here.
package requestcontext

import (
	"context"
	"time"
)

type (
	userIDKey      struct{}
	userRoleKey    struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

func stringValue(ctx context.Context, key any) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// UserID is the authenticated subject, or the body-supplied id when the
// route is public and a handler stored it.
func UserID(ctx context.Context) string {
	return stringValue(ctx, userIDKey{})
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func UserRole(ctx context.Context) string {
	return stringValue(ctx, userRoleKey{})
}

func WithUserRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, userRoleKey{}, role)
}

func ClientIP(ctx context.Context) string {
	return stringValue(ctx, clientIPKey{})
}

func UserAgent(ctx context.Context) string {
	return stringValue(ctx, userAgentKey{})
}

// WithClientMetadata sets the source fields used by audit records.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

func RequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey{})
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the pinned request time, or the wall clock outside a request
// (sweepers, the CLI).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
