package rate

import "errors"

var (
	// ErrRateLimited is returned when a subject has exhausted its budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable is returned when the counter backend cannot be reached.
	ErrUnavailable = errors.New("rate limit backend unavailable")
)
