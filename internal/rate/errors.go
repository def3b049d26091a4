package rate

import "errors"

var (
	// ErrRateLimited is returned when a window budget or cooldown slot is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
