package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with the timeouts used by every listener.
// WriteTimeout leaves room for a model call with retries.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
