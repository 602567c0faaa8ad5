package dispatch

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"thoughtswap/internal/collector"
	"thoughtswap/internal/distribute"
	"thoughtswap/internal/session"
	"thoughtswap/internal/websocket"
	"thoughtswap/pkg/interfaces"
	"thoughtswap/pkg/types"
)

// Dispatcher is the orchestration layer: it authorizes inbound commands by
// role, drives the room registry, session state machine, collector and
// distribution engine, and emits outbound events. All of its HandleCommand
// and HandleDisconnect calls run on the hub's single goroutine, so every
// room mutation executes to completion before the next command is seen.
type Dispatcher struct {
	registry  *websocket.Registry
	sessions  *session.Manager
	responses *collector.Collector
	store     interfaces.Store
	limiter   *RateLimiter
	rng       *rand.Rand
}

// NewDispatcher creates a dispatcher. The rng drives swap shuffles and is
// injectable so tests can pin the permutation.
func NewDispatcher(registry *websocket.Registry, sessions *session.Manager, responses *collector.Collector, store interfaces.Store, rng *rand.Rand) *Dispatcher {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Dispatcher{
		registry:  registry,
		sessions:  sessions,
		responses: responses,
		store:     store,
		limiter:   NewRateLimiter(),
		rng:       rng,
	}
}

// HandleCommand processes one inbound command. Failures are reported only
// to the originating connection; they never touch other rooms' state.
func (d *Dispatcher) HandleCommand(ctx context.Context, conn *websocket.Connection, cmd *types.Command) {
	var err error

	switch cmd.Type {
	case types.CommandJoin:
		err = d.handleJoin(ctx, conn, cmd)
	case types.CommandStartSession:
		err = d.handleStartSession(ctx, conn, cmd)
	case types.CommandPublishPrompt:
		err = d.handlePublishPrompt(ctx, conn, cmd)
	case types.CommandSubmit:
		err = d.handleSubmit(ctx, conn, cmd)
	case types.CommandTriggerSwap:
		err = d.handleTriggerSwap(ctx, conn)
	case types.CommandEndSession:
		err = d.handleEndSession(ctx, conn)
	case types.CommandLeave:
		d.HandleLeave(conn)
	default:
		err = ErrUnknownCommand
	}

	if err != nil {
		log.Printf("Command failed: type=%s conn=%s err=%v", cmd.Type, conn.ID(), err)
		d.sendError(conn, err)
	}
}

// HandleDisconnect removes a dropped connection from its room and refreshes
// the facilitator's roster. A write already issued to the store is not
// rolled back; the connection simply stops being a recipient.
func (d *Dispatcher) HandleDisconnect(conn *websocket.Connection) {
	code := conn.RoomCode()
	d.registry.Unregister(conn)
	if code != "" {
		d.pushRoster(code)
	}
	log.Printf("Connection closed: id=%s name=%s", conn.ID(), conn.Identity().Name)
}

// Cleanup drops stale rate limiter windows so the author map stays bounded.
// The hub calls this periodically from its processing loop.
func (d *Dispatcher) Cleanup() {
	d.limiter.Cleanup()
}

// HandleLeave handles an explicit leave command.
func (d *Dispatcher) HandleLeave(conn *websocket.Connection) {
	code := conn.RoomCode()
	d.registry.LeaveRoom(conn)
	if code != "" {
		d.pushRoster(code)
	}
}

// handleJoin resolves the code against the course directory and adds the
// connection to the room. A joining facilitator becomes facilitator-of-record,
// replacing any stale handle.
func (d *Dispatcher) handleJoin(ctx context.Context, conn *websocket.Connection, cmd *types.Command) error {
	code := types.NormalizeRoomCode(cmd.Code)
	if code == "" {
		return types.ErrInvalidInput
	}

	course, err := d.store.GetCourseByCode(ctx, code)
	if err != nil {
		if errors.Is(err, interfaces.ErrCourseNotFound) {
			return types.ErrRoomNotFound
		}
		return err
	}

	if err := d.registry.JoinRoom(conn, code); err != nil {
		return types.ErrInvalidInput
	}

	d.send(conn, types.NewEvent(types.EventJoinSuccess, map[string]interface{}{
		"code":  code,
		"title": course.Title,
	}))
	log.Printf("Joined room: room=%s role=%s name=%s", code, conn.Role(), conn.Identity().Name)

	// Late joiners see the live prompt immediately instead of waiting for
	// the next publish.
	if d.sessions.IsPromptLive(code) {
		if prompt, ok := d.sessions.LivePrompt(code); ok {
			d.send(conn, newPromptEvent(prompt))
		}
	}

	d.pushRoster(code)
	return nil
}

// handleStartSession begins (or re-acknowledges) a session for the
// facilitator's room. Idempotent by way of the session manager.
func (d *Dispatcher) handleStartSession(ctx context.Context, conn *websocket.Connection, cmd *types.Command) error {
	if err := d.requireRole(conn, types.RoleFacilitator); err != nil {
		return err
	}

	code, err := d.roomScope(conn, cmd)
	if err != nil {
		return err
	}

	course, err := d.store.GetCourseByCode(ctx, code)
	if err != nil {
		if errors.Is(err, interfaces.ErrCourseNotFound) {
			return types.ErrRoomNotFound
		}
		return err
	}

	sess, err := d.sessions.StartSession(ctx, code, course.ID)
	if err != nil {
		return err
	}

	d.send(conn, types.NewEvent(types.EventSessionStarted, map[string]interface{}{
		"code":       code,
		"session_id": sess.ID,
	}))
	return nil
}

// handlePublishPrompt advances the room to PROMPT_LIVE, resets collection
// and broadcasts the prompt to the whole room.
func (d *Dispatcher) handlePublishPrompt(ctx context.Context, conn *websocket.Connection, cmd *types.Command) error {
	if err := d.requireRole(conn, types.RoleFacilitator); err != nil {
		return err
	}

	code, err := d.roomScope(conn, cmd)
	if err != nil {
		return err
	}

	if err := types.ValidateContent(cmd.Content); err != nil {
		return err
	}

	prompt, err := d.sessions.PublishPrompt(ctx, code, cmd.Content)
	if err != nil {
		return err
	}

	d.responses.Reset(code, prompt.ID)

	event := newPromptEvent(prompt)
	for _, member := range d.registry.RoomConnections(code) {
		d.send(member, event)
	}

	d.pushRoster(code)
	return nil
}

// handleSubmit records a participant's thought for the live prompt, persists
// it and refreshes the facilitator's roster. No room-wide broadcast.
func (d *Dispatcher) handleSubmit(ctx context.Context, conn *websocket.Connection, cmd *types.Command) error {
	if err := d.requireRole(conn, types.RoleParticipant); err != nil {
		return err
	}

	code := conn.RoomCode()
	if code == "" {
		return types.ErrNotAcceptingSubmissions
	}

	if err := types.ValidateContent(cmd.Content); err != nil {
		return err
	}

	author := conn.Identity().Email
	if !d.limiter.Allow(author) {
		return ErrRateLimited
	}

	count, err := d.responses.Submit(code, author, cmd.Content)
	if err != nil {
		return err
	}

	// Persist after the in-memory upsert succeeds; the store retries once
	// internally and a residual failure only costs the durable copy.
	if prompt, ok := d.sessions.LivePrompt(code); ok {
		thought := &types.Thought{
			ID:        uuid.New().String(),
			PromptID:  prompt.ID,
			Author:    author,
			Content:   cmd.Content,
			CreatedAt: time.Now(),
		}
		if err := d.store.UpsertThought(ctx, thought); err != nil {
			log.Printf("Failed to persist thought: room=%s author=%s err=%v", code, author, err)
		}
	}

	log.Printf("Submission recorded: room=%s author=%s count=%d", code, author, count)
	d.pushRoster(code)
	return nil
}

// handleTriggerSwap shuffles the collected responses and delivers one to
// each currently connected participant, then acknowledges the facilitator.
func (d *Dispatcher) handleTriggerSwap(ctx context.Context, conn *websocket.Connection) error {
	if err := d.requireRole(conn, types.RoleFacilitator); err != nil {
		return err
	}

	code := conn.RoomCode()
	if code == "" {
		return ErrNotInRoom
	}

	responses := d.responses.Snapshot(code)
	if err := d.sessions.TriggerSwap(code, len(responses)); err != nil {
		return err
	}

	// Recipients are the connected participant set at this moment, which
	// is sourced independently from the author set: a disconnected author's
	// thought is still distributed, and a late joiner can receive one.
	participants := d.registry.Participants(code)
	recipients := make([]string, len(participants))
	byID := make(map[string]*websocket.Connection, len(participants))
	for i, member := range participants {
		recipients[i] = member.Conn.ID()
		byID[member.Conn.ID()] = member.Conn
	}

	assignments := distribute.Distribute(responses, recipients, d.rng)
	for id, content := range assignments {
		d.send(byID[id], types.NewEvent(types.EventReceiveSwap, map[string]interface{}{
			"content": content,
		}))
	}

	d.send(conn, types.NewEvent(types.EventSwapComplete, map[string]interface{}{
		"responses":  len(responses),
		"recipients": len(assignments),
	}))
	log.Printf("Swap complete: room=%s responses=%d recipients=%d", code, len(responses), len(assignments))
	return nil
}

// handleEndSession tears the room down: session to IDLE, collector cleared,
// membership dropped, everyone notified.
func (d *Dispatcher) handleEndSession(ctx context.Context, conn *websocket.Connection) error {
	if err := d.requireRole(conn, types.RoleFacilitator); err != nil {
		return err
	}

	code := conn.RoomCode()
	if code == "" {
		return ErrNotInRoom
	}

	if err := d.sessions.EndSession(ctx, code); err != nil {
		return err
	}

	d.responses.Clear(code)

	event := types.NewEvent(types.EventSessionEnded, map[string]interface{}{
		"code": code,
	})
	for _, member := range d.registry.ClearRoom(code) {
		d.send(member, event)
	}

	return nil
}

// requireRole rejects a command whose issuer lacks the required role.
// Violations are reported as explicit unauthorized errors rather than
// silently dropped.
func (d *Dispatcher) requireRole(conn *websocket.Connection, role string) error {
	if conn.Role() != role {
		return types.ErrUnauthorized
	}
	return nil
}

// roomScope resolves the room a command targets: explicit code if present,
// otherwise the room joined earlier.
func (d *Dispatcher) roomScope(conn *websocket.Connection, cmd *types.Command) (string, error) {
	if cmd.Code != "" {
		code := types.NormalizeRoomCode(cmd.Code)
		if code == "" {
			return "", types.ErrInvalidInput
		}
		return code, nil
	}
	if code := conn.RoomCode(); code != "" {
		return code, nil
	}
	return "", ErrNotInRoom
}

// pushRoster sends the current roster and submission count to the room's
// facilitator. Membership and submission changes both land here.
func (d *Dispatcher) pushRoster(code string) {
	facilitator, ok := d.registry.Facilitator(code)
	if !ok {
		return
	}

	members := d.registry.Participants(code)
	roster := make([]types.RosterEntry, len(members))
	for i, member := range members {
		identity := member.Conn.Identity()
		roster[i] = types.RosterEntry{
			Name:      identity.Name,
			Email:     identity.Email,
			Submitted: d.responses.HasSubmitted(code, identity.Email),
			JoinedAt:  member.JoinedAt,
		}
	}

	d.send(facilitator, types.NewEvent(types.EventRosterUpdate, map[string]interface{}{
		"participants":     roster,
		"submission_count": d.responses.Count(code),
	}))
}

// send delivers an event to one connection, logging delivery failures.
// Delivery to the remaining recipients continues regardless.
func (d *Dispatcher) send(conn *websocket.Connection, event *types.Event) {
	if conn == nil {
		return
	}
	if err := conn.WriteJSON(event); err != nil {
		log.Printf("Failed to deliver %s to %s: %v", event.Type, conn.ID(), err)
	}
}

// sendError reports a command failure to its originator as a structured
// error event.
func (d *Dispatcher) sendError(conn *websocket.Connection, err error) {
	code := types.ErrorCode(err)
	switch {
	case errors.Is(err, ErrRateLimited):
		code = types.ErrorCodeRateLimited
	case errors.Is(err, session.ErrNoActiveSession), errors.Is(err, session.ErrNoLivePrompt),
		errors.Is(err, ErrNotInRoom), errors.Is(err, ErrUnknownCommand):
		code = types.ErrorCodeInvalidInput
	}
	d.send(conn, types.NewErrorEvent(code, err.Error()))
}

// newPromptEvent builds the room-wide prompt broadcast.
func newPromptEvent(prompt *types.Prompt) *types.Event {
	return types.NewEvent(types.EventNewPrompt, map[string]interface{}{
		"content":   prompt.Content,
		"prompt_id": prompt.ID,
	})
}
