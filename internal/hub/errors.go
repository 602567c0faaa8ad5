package hub

import "errors"

// Hub lifecycle and backpressure errors.
var (
	ErrHubAlreadyRunning     = errors.New("hub is already running")
	ErrHubNotRunning         = errors.New("hub is not running")
	ErrCommandChannelFull    = errors.New("command channel is full")
	ErrDisconnectChannelFull = errors.New("disconnect channel is full")
)
