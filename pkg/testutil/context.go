package testutil

import (
	"net/http"

	"bankguard/pkg/requestcontext"
)

// WithAuth adds an authenticated subject and role to the request context.
// This simulates what the bearer auth middleware does for valid tokens.
func WithAuth(req *http.Request, userID, role string) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithUserRole(ctx, role)
	return req.WithContext(ctx)
}

// WithClientMetadata adds the client address and user agent to the request context.
func WithClientMetadata(req *http.Request, clientIP, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent))
}
