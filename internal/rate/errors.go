package rate

import "errors"

var (
	// ErrRateLimited reports that the key has used its attempt budget for the
	// current window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps any Redis failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
