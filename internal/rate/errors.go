package rate

import "errors"

var (
	// ErrUnknownCategory is returned for a category without a configured window.
	ErrUnknownCategory = errors.New("rate: no window configured for category")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
