// Package requesttime pins one clock reading per request. Session access
// times, audit timestamps and retention checks within a request agree.
package requesttime

import (
	"net/http"
	"time"

	"bankguard/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
