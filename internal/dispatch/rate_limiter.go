package dispatch

import (
	"sync"
	"time"
)

// submitLimit is the per-author submission ceiling per minute window.
const submitLimit = 30

// RateLimiter implements per-author rate limiting for submissions.
type RateLimiter struct {
	mu      sync.Mutex
	authors map[string]*authorLimit
}

// authorLimit tracks one author's current minute window.
type authorLimit struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		authors: make(map[string]*authorLimit),
	}
}

// Allow reports whether the author may submit now and records the attempt.
func (rl *RateLimiter) Allow(author string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	limit, exists := rl.authors[author]
	if !exists {
		rl.authors[author] = &authorLimit{count: 1, windowStart: now}
		return true
	}

	if now.Sub(limit.windowStart) >= time.Minute {
		limit.count = 1
		limit.windowStart = now
		return true
	}

	if limit.count >= submitLimit {
		return false
	}

	limit.count++
	return true
}

// Cleanup removes stale author entries. Call periodically to keep the map
// from growing with one entry per author ever seen.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for author, limit := range rl.authors {
		if now.Sub(limit.windowStart) > 5*time.Minute {
			delete(rl.authors, author)
		}
	}
}
