package rate

import "errors"

var (
	// ErrRateLimited is returned when the caller exhausted its window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
