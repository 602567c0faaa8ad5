package types

import "errors"

// Core error kinds. Every command failure maps onto one of these before it
// is reported back to the originating connection.
var (
	ErrRoomNotFound            = errors.New("room not found")
	ErrUnauthorized            = errors.New("role not authorized for this command")
	ErrNotAcceptingSubmissions = errors.New("no live prompt is accepting submissions")
	ErrInsufficientResponses   = errors.New("at least 2 responses are required to swap")
	ErrInvalidInput            = errors.New("invalid input: empty code or content")
)

// Validation errors for type-level checks.
var (
	ErrInvalidRoomCode = errors.New("room code must be 4-8 characters, letters and digits only")
	ErrInvalidRole     = errors.New("invalid role: must be 'participant' or 'facilitator'")
	ErrInvalidIdentity = errors.New("identity requires a non-empty name and email")
	ErrContentTooLarge = errors.New("content exceeds 64KB limit")
)

// ErrorCode maps a core error to its wire error code for error events.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return ErrorCodeRoomNotFound
	case errors.Is(err, ErrUnauthorized):
		return ErrorCodeUnauthorized
	case errors.Is(err, ErrNotAcceptingSubmissions):
		return ErrorCodeNotAccepting
	case errors.Is(err, ErrInsufficientResponses):
		return ErrorCodeInsufficient
	default:
		return ErrorCodeInvalidInput
	}
}
