package interfaces

import "errors"

// Common store errors used across components.
var (
	ErrCourseNotFound  = errors.New("course not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrPromptNotFound  = errors.New("prompt not found")
)
