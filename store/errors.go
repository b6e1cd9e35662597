package store

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
	// ErrTokenAlreadyUsed is returned by RotateRefreshToken when the predecessor
	// was already marked used. Callers treat it as refresh token reuse.
	ErrTokenAlreadyUsed = errors.New("refresh token already used")
	// ErrUnavailable wraps backend failures (network, driver, script errors).
	ErrUnavailable = errors.New("store unavailable")
)
