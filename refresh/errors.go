package refresh

import "errors"

var (
	// ErrInvalidRefreshToken covers signature, type and binding failures.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRefreshExpired is returned for unknown, expired or revoked tokens.
	ErrRefreshExpired = errors.New("refresh token expired")
	// ErrRefreshReused is returned after reuse detection revoked the device lineage.
	ErrRefreshReused = errors.New("refresh token reused")
)
