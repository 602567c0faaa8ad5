package session

import "errors"

// Session state machine errors.
var (
	ErrNoActiveSession = errors.New("no active session for this room")
	ErrNoLivePrompt    = errors.New("no live prompt for this room")
)
