// Package sentinel holds the store-level error facts. Stores return them,
// possibly wrapped, and services translate them into domain errors.
package sentinel

import "errors"

var (
	// ErrNotFound means the record does not exist or is no longer reachable,
	// which includes expired sessions.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate means a record with the same unique key already exists.
	ErrDuplicate = errors.New("duplicate")
)
