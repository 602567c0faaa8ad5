// Package distribute computes swap assignments: who receives whose thought.
// It holds no state and is safe to invoke concurrently for different rooms.
package distribute

import (
	"math/rand"

	"thoughtswap/internal/collector"
)

// Distribute maps each recipient to one response content. The response pool
// is shuffled with a uniform Fisher-Yates permutation, then recipients are
// assigned in order with wrap-around, so every recipient receives a value
// even when recipients outnumber responses and no response is skipped when
// responses cover the recipients.
//
// No derangement is attempted: a recipient may receive their own content.
// The recipient set is whoever is connected at swap time, which is sourced
// independently from the author set. Callers guard the empty-response case;
// this function never errors on non-empty input.
func Distribute(responses []collector.Response, recipients []string, rng *rand.Rand) map[string]string {
	if len(responses) == 0 || len(recipients) == 0 {
		return map[string]string{}
	}

	pool := make([]string, len(responses))
	for i, r := range responses {
		pool[i] = r.Content
	}

	for i := len(pool) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
	}

	assignments := make(map[string]string, len(recipients))
	for i, recipient := range recipients {
		assignments[recipient] = pool[i%len(pool)]
	}
	return assignments
}
