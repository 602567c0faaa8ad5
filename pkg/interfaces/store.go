package interfaces

import (
	"context"

	"thoughtswap/pkg/types"
)

// Store handles all durable persistence: the course directory plus the
// session/prompt/thought record. In-memory state elsewhere in the system is
// a working set over this store, not the sole record.
type Store interface {
	// Course directory operations. Lookup is by normalized join code.
	CreateCourse(ctx context.Context, course *types.Course) error
	GetCourseByCode(ctx context.Context, code string) (*types.Course, error)
	ListCourses(ctx context.Context) ([]*types.Course, error)

	// Session operations. FindActiveSession backs both facilitator join
	// idempotency and boot-time state restoration.
	CreateSession(ctx context.Context, session *types.Session) error
	UpdateSession(ctx context.Context, session *types.Session) error
	FindActiveSession(ctx context.Context, courseID string) (*types.Session, error)
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)

	// Prompt operations. Prompt IDs are caller-assigned and strictly
	// increasing; MaxPromptID seeds the counter after a restart.
	CreatePrompt(ctx context.Context, prompt *types.Prompt) error
	LatestPrompt(ctx context.Context, sessionID string) (*types.Prompt, error)
	MaxPromptID(ctx context.Context) (int64, error)

	// Thought operations. UpsertThought keeps the author's latest response
	// for a prompt; earlier rows for the same (prompt, author) are replaced.
	UpsertThought(ctx context.Context, thought *types.Thought) error
	ListThoughts(ctx context.Context, promptID int64) ([]*types.Thought, error)

	// Health and lifecycle.
	HealthCheck(ctx context.Context) error
	Close() error
}
