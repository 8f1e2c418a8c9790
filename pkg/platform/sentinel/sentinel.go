// Package sentinel holds the storage-level facts that services translate into
// coded domain errors. Stores wrap these; they never return domain errors.
package sentinel

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a duplicate key, such as a second user with the
	// same username.
	ErrConflict = errors.New("conflict")
	// ErrStaleVersion reports a lost compare-and-swap on a registration
	// version.
	ErrStaleVersion = errors.New("stale version")
	// ErrUnavailable reports a backend that is down or behind an open
	// breaker.
	ErrUnavailable = errors.New("unavailable")
)
