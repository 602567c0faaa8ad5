package types

import (
	"regexp"
	"strings"
)

// Compiled once; room codes and identities are validated on every command.
var roomCodeRegex = regexp.MustCompile(`^[A-Z0-9]{4,8}$`)

// NormalizeRoomCode trims whitespace and uppercases a join code. All room
// lookups operate on the normalized form.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidRoomCode reports whether a normalized code has the expected shape.
func IsValidRoomCode(code string) bool {
	return roomCodeRegex.MatchString(code)
}

// IsValidRole reports whether the declared role is one the system knows.
func IsValidRole(role string) bool {
	return role == RoleFacilitator || role == RoleParticipant
}

// Validate checks that an identity carries the fields required to key
// durable records.
func (id Identity) Validate() error {
	if strings.TrimSpace(id.Name) == "" || strings.TrimSpace(id.Email) == "" {
		return ErrInvalidIdentity
	}
	return nil
}

// ValidateContent checks prompt and thought text: non-empty after trimming,
// bounded to keep rows and broadcasts small.
func ValidateContent(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ErrInvalidInput
	}
	if len(content) > 65536 {
		return ErrContentTooLarge
	}
	return nil
}

// Validate ensures a course is storable.
func (c *Course) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return ErrInvalidInput
	}
	if !IsValidRoomCode(c.JoinCode) {
		return ErrInvalidRoomCode
	}
	return nil
}
