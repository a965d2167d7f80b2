package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// ErrStoreUnavailable marks collaborator (database) failures. Callers
	// may retry; this subsystem never retries internally because a counter
	// increment is not idempotent.
	ErrStoreUnavailable = errors.New("persistent store unavailable")
)
