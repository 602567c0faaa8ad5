package collector

import (
	"sync"

	"thoughtswap/pkg/types"
)

// StateSource is the narrow view of the session state machine the collector
// needs: whether a room currently has a live prompt accepting submissions.
type StateSource interface {
	IsPromptLive(code string) bool
}

// Response is one collected (author, content) pair.
type Response struct {
	Author  string
	Content string
}

// promptRecord accumulates submissions for a room's live prompt.
type promptRecord struct {
	promptID  int64
	order     []string          // authors in first-submission order
	responses map[string]string // author -> latest content
}

// Collector owns the response set for each room's live prompt. It is keyed
// by author identity, not connection handle: a resubmission from the same
// author replaces the earlier response rather than adding a second one.
type Collector struct {
	mu     sync.RWMutex
	states StateSource
	rooms  map[string]*promptRecord
}

// New creates a collector gated by the given state source.
func New(states StateSource) *Collector {
	return &Collector{
		states: states,
		rooms:  make(map[string]*promptRecord),
	}
}

// Reset clears the response set and submission flags for a room, scoping
// collection to the given prompt. Called on every prompt publish.
func (c *Collector) Reset(code string, promptID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rooms[code] = &promptRecord{
		promptID:  promptID,
		responses: make(map[string]string),
	}
}

// Clear drops all records for a room. Called on end-session.
func (c *Collector) Clear(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, code)
}

// Submit records an author's response for the room's live prompt and returns
// the updated count. The author's latest response is authoritative.
func (c *Collector) Submit(code, author, content string) (int, error) {
	if !c.states.IsPromptLive(code) {
		return 0, types.ErrNotAcceptingSubmissions
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	record := c.rooms[code]
	if record == nil {
		// State says live but no reset was seen; treat as closed rather
		// than collecting against an unknown prompt.
		return 0, types.ErrNotAcceptingSubmissions
	}

	if _, seen := record.responses[author]; !seen {
		record.order = append(record.order, author)
	}
	record.responses[author] = content

	return len(record.responses), nil
}

// Count returns the number of distinct authors with a recorded response.
func (c *Collector) Count(code string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	record := c.rooms[code]
	if record == nil {
		return 0
	}
	return len(record.responses)
}

// HasSubmitted reports whether an author has a response on record for the
// room's live prompt.
func (c *Collector) HasSubmitted(code, author string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	record := c.rooms[code]
	if record == nil {
		return false
	}
	_, ok := record.responses[author]
	return ok
}

// PromptID returns the prompt the room is currently collecting against.
func (c *Collector) PromptID(code string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	record := c.rooms[code]
	if record == nil {
		return 0, false
	}
	return record.promptID, true
}

// Snapshot returns the collected responses in first-submission order.
// The returned slice is a copy; the record itself is untouched, remaining
// the historical record after a swap consumes it.
func (c *Collector) Snapshot(code string) []Response {
	c.mu.RLock()
	defer c.mu.RUnlock()

	record := c.rooms[code]
	if record == nil {
		return nil
	}

	responses := make([]Response, 0, len(record.order))
	for _, author := range record.order {
		responses = append(responses, Response{
			Author:  author,
			Content: record.responses[author],
		})
	}
	return responses
}
