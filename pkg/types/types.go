package types

import (
	"time"
)

// Role constants for connected clients. The identity/role pair arrives
// verified from the external auth layer and is trusted as given.
const (
	RoleFacilitator = "facilitator"
	RoleParticipant = "participant"
)

// Inbound command types accepted over the WebSocket.
const (
	CommandJoin          = "join"
	CommandStartSession  = "start_session"
	CommandPublishPrompt = "publish_prompt"
	CommandSubmit        = "submit"
	CommandTriggerSwap   = "trigger_swap"
	CommandEndSession    = "end_session"
	CommandLeave         = "leave"
)

// Outbound event types emitted to clients.
const (
	EventJoinSuccess    = "join_success"
	EventSessionStarted = "session_started"
	EventNewPrompt      = "new_prompt"
	EventRosterUpdate   = "roster_update"
	EventReceiveSwap    = "receive_swap"
	EventSwapComplete   = "swap_complete"
	EventSessionEnded   = "session_ended"
	EventError          = "error"
)

// Wire error codes carried in error event payloads.
const (
	ErrorCodeRoomNotFound = "room_not_found"
	ErrorCodeUnauthorized = "unauthorized"
	ErrorCodeNotAccepting = "not_accepting_submissions"
	ErrorCodeInsufficient = "insufficient_responses"
	ErrorCodeInvalidInput = "invalid_input"
	ErrorCodeRateLimited  = "rate_limited"
)

// Session status values persisted in the store.
const (
	SessionStatusActive = "active"
	SessionStatusEnded  = "ended"
)

// Identity is the stable identity supplied by the auth collaborator at
// handshake time. Connection handles are ephemeral; Email is the durable key.
type Identity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Course is a directory entry resolving a join code to a classroom.
type Course struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	JoinCode  string    `json:"join_code" db:"join_code"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Session is one run of a classroom exercise for a course.
// Immutable after creation except for EndedAt and Status.
type Session struct {
	ID        string     `json:"id" db:"id"`
	CourseID  string     `json:"course_id" db:"course_id"`
	Status    string     `json:"status" db:"status"`
	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

// Prompt is a discussion question broadcast to a room. IDs are assigned
// monotonically for the lifetime of the store and never reused.
type Prompt struct {
	ID        int64     `json:"id" db:"id"`
	SessionID string    `json:"session_id" db:"session_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Thought is a participant's submitted response to a prompt.
// At most one per (prompt, author); the author's latest submission wins.
type Thought struct {
	ID        string    `json:"id" db:"id"`
	PromptID  int64     `json:"prompt_id" db:"prompt_id"`
	Author    string    `json:"author" db:"author"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RosterEntry is one participant row in the facilitator's roster push.
type RosterEntry struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Submitted bool      `json:"submitted"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Command is an inbound wire message from a connection.
type Command struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Content string `json:"content,omitempty"`
}

// Event is an outbound wire message to one or more connections.
type Event struct {
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(eventType string, payload map[string]interface{}) *Event {
	return &Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// NewErrorEvent builds the error event delivered only to the originating
// connection. Errors are local to the command that caused them.
func NewErrorEvent(code, message string) *Event {
	return NewEvent(EventError, map[string]interface{}{
		"code":    code,
		"message": message,
	})
}
