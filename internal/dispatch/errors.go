package dispatch

import "errors"

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrUnhandledMessage  = errors.New("no handler for message")
)
