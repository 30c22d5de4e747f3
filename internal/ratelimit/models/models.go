// Package models holds the rate limit result and its HTTP response body.
package models

import "time"

// Result is the outcome of one Allow call against a sliding window.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is whole seconds until a slot frees up; zero when allowed.
	RetryAfter int
}

// ExceededResponse is written with 429 when a client runs out of requests.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// Key scopes a client identifier to a route class.
func Key(class, client string) string {
	return "ratelimit:" + class + ":" + client
}
