package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"thoughtswap/pkg/interfaces"
	"thoughtswap/pkg/types"
)

// State is a room's position in the session lifecycle. SWAP_READY is not a
// stored state: it is the derived condition "prompt live and at least two
// responses collected".
type State string

const (
	StateIdle       State = "IDLE"
	StateActive     State = "ACTIVE"
	StatePromptLive State = "PROMPT_LIVE"
	StateSwapDone   State = "SWAP_DONE"
)

// roomSession is the in-memory lifecycle record for one room code.
type roomSession struct {
	state   State
	session *types.Session
	prompt  *types.Prompt
}

// Manager owns the per-room session state machine and the current-prompt
// pointer. The store is the source of truth; in-memory state is a working
// set rehydrated at boot.
type Manager struct {
	store     interfaces.Store
	mu        sync.RWMutex
	rooms     map[string]*roomSession // normalized code -> lifecycle record
	promptSeq int64                   // last assigned prompt ID, monotonic
}

// NewManager creates a session manager backed by the given store.
func NewManager(store interfaces.Store) *Manager {
	return &Manager{
		store: store,
		rooms: make(map[string]*roomSession),
	}
}

// Rehydrate restores room lifecycle state from the store after a process
// start: active sessions resume as ACTIVE, or PROMPT_LIVE when a prompt was
// already published. The prompt counter is seeded past every ID ever issued
// so identifiers stay monotonic across restarts.
func (m *Manager) Rehydrate(ctx context.Context) error {
	maxID, err := m.store.MaxPromptID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read max prompt id: %w", err)
	}

	courses, err := m.store.ListCourses(ctx)
	if err != nil {
		return fmt.Errorf("failed to list courses: %w", err)
	}
	codeByCourse := make(map[string]string, len(courses))
	for _, course := range courses {
		codeByCourse[course.ID] = course.JoinCode
	}

	sessions, err := m.store.ListActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.promptSeq = maxID

	restored := 0
	for _, sess := range sessions {
		code, ok := codeByCourse[sess.CourseID]
		if !ok {
			log.Printf("Active session %s references unknown course %s, skipping", sess.ID, sess.CourseID)
			continue
		}

		record := &roomSession{state: StateActive, session: sess}
		prompt, err := m.store.LatestPrompt(ctx, sess.ID)
		switch {
		case err == nil:
			record.state = StatePromptLive
			record.prompt = prompt
		case errors.Is(err, interfaces.ErrPromptNotFound):
			// Session started but no prompt published yet.
		default:
			return fmt.Errorf("failed to load latest prompt for session %s: %w", sess.ID, err)
		}

		m.rooms[code] = record
		restored++
	}

	log.Printf("Restored %d active sessions (prompt counter at %d)", restored, m.promptSeq)
	return nil
}

// StartSession moves a room from IDLE to ACTIVE. Idempotent: when a session
// is already running for the room, the existing one is returned unchanged.
func (m *Manager) StartSession(ctx context.Context, code, courseID string) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record, ok := m.rooms[code]; ok && record.state != StateIdle {
		return record.session, nil
	}

	// A prior process may have left an active session behind; adopt it
	// instead of stacking a second one.
	existing, err := m.store.FindActiveSession(ctx, courseID)
	if err == nil {
		m.rooms[code] = &roomSession{state: StateActive, session: existing}
		return existing, nil
	}
	if !errors.Is(err, interfaces.ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to look up active session: %w", err)
	}

	sess := &types.Session{
		ID:        uuid.New().String(),
		CourseID:  courseID,
		Status:    types.SessionStatusActive,
		StartedAt: time.Now(),
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.rooms[code] = &roomSession{state: StateActive, session: sess}
	log.Printf("Started session: room=%s session=%s course=%s", code, sess.ID, courseID)
	return sess, nil
}

// PublishPrompt assigns the next prompt identifier, persists the prompt and
// advances the room to PROMPT_LIVE. Allowed from any non-IDLE state: a new
// prompt while one is live simply invalidates the old one. The caller must
// reset the response collector with the returned prompt's ID.
func (m *Manager) PublishPrompt(ctx context.Context, code, content string) (*types.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.rooms[code]
	if !ok || record.state == StateIdle {
		return nil, ErrNoActiveSession
	}

	prompt := &types.Prompt{
		ID:        m.promptSeq + 1,
		SessionID: record.session.ID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := m.store.CreatePrompt(ctx, prompt); err != nil {
		return nil, fmt.Errorf("failed to persist prompt: %w", err)
	}

	m.promptSeq++
	record.prompt = prompt
	record.state = StatePromptLive

	log.Printf("Published prompt: room=%s prompt=%d session=%s", code, prompt.ID, prompt.SessionID)
	return prompt, nil
}

// TriggerSwap validates the swap precondition and advances the room to
// SWAP_DONE. With fewer than two collected responses the state is left at
// PROMPT_LIVE and ErrInsufficientResponses is returned.
func (m *Manager) TriggerSwap(code string, responseCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.rooms[code]
	if !ok || record.state != StatePromptLive {
		return ErrNoLivePrompt
	}
	if responseCount < 2 {
		return types.ErrInsufficientResponses
	}

	record.state = StateSwapDone
	return nil
}

// EndSession moves a room to IDLE from any state and persists the session's
// end. The caller clears registry membership and collector records.
func (m *Manager) EndSession(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.rooms[code]
	if !ok || record.state == StateIdle {
		return ErrNoActiveSession
	}

	now := time.Now()
	record.session.Status = types.SessionStatusEnded
	record.session.EndedAt = &now
	if err := m.store.UpdateSession(ctx, record.session); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	delete(m.rooms, code)
	log.Printf("Ended session: room=%s session=%s", code, record.session.ID)
	return nil
}

// RoomState returns a room's current lifecycle state.
func (m *Manager) RoomState(code string) State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.rooms[code]
	if !ok {
		return StateIdle
	}
	return record.state
}

// IsPromptLive reports whether a room is accepting submissions. This is the
// collector's gate.
func (m *Manager) IsPromptLive(code string) bool {
	return m.RoomState(code) == StatePromptLive
}

// LivePrompt returns the room's current prompt, valid in PROMPT_LIVE and
// SWAP_DONE.
func (m *Manager) LivePrompt(code string) (*types.Prompt, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.rooms[code]
	if !ok || record.prompt == nil {
		return nil, false
	}
	return record.prompt, true
}

// PromptLiveRooms returns every room currently in PROMPT_LIVE with its live
// prompt. After a restart the caller replays the persisted thoughts for these
// prompts into the collector so the restored rooms accept submissions again.
func (m *Manager) PromptLiveRooms() map[string]*types.Prompt {
	m.mu.RLock()
	defer m.mu.RUnlock()

	live := make(map[string]*types.Prompt)
	for code, record := range m.rooms {
		if record.state == StatePromptLive && record.prompt != nil {
			live[code] = record.prompt
		}
	}
	return live
}

// ActiveSession returns the room's session record, if one is running.
func (m *Manager) ActiveSession(code string) (*types.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.rooms[code]
	if !ok || record.state == StateIdle {
		return nil, false
	}
	return record.session, true
}

// Stats returns session manager counters for monitoring.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"active_rooms":   len(m.rooms),
		"prompt_counter": m.promptSeq,
	}
}
