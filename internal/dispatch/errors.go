package dispatch

import "errors"

// Dispatcher-specific errors.
var (
	ErrUnknownCommand = errors.New("unknown command type")
	ErrNotInRoom      = errors.New("connection has not joined a room")
	ErrRateLimited    = errors.New("submission rate limit exceeded")
)
