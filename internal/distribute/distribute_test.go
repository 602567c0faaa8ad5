package distribute

import (
	"fmt"
	"math/rand"
	"testing"

	"thoughtswap/internal/collector"
)

func makeResponses(n int) []collector.Response {
	responses := make([]collector.Response, n)
	for i := range responses {
		responses[i] = collector.Response{
			Author:  fmt.Sprintf("author%d@test.edu", i),
			Content: fmt.Sprintf("thought-%d", i),
		}
	}
	return responses
}

func makeRecipients(n int) []string {
	recipients := make([]string, n)
	for i := range recipients {
		recipients[i] = fmt.Sprintf("conn-%d", i)
	}
	return recipients
}

// TestDistribute_EveryRecipientAssigned verifies the core coverage property:
// each recipient appears exactly once in the assignment map, with a value
// drawn from the response pool.
func TestDistribute_EveryRecipientAssigned(t *testing.T) {
	testCases := []struct {
		name       string
		responses  int
		recipients int
	}{
		{"equal counts", 5, 5},
		{"more recipients than responses", 3, 10},
		{"more responses than recipients", 10, 3},
		{"two responses two recipients", 2, 2},
		{"single recipient", 4, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			responses := makeResponses(tc.responses)
			recipients := makeRecipients(tc.recipients)
			rng := rand.New(rand.NewSource(42))

			assignments := Distribute(responses, recipients, rng)

			if len(assignments) != tc.recipients {
				t.Fatalf("Expected %d assignments, got %d", tc.recipients, len(assignments))
			}

			valid := make(map[string]bool, tc.responses)
			for _, r := range responses {
				valid[r.Content] = true
			}

			for _, recipient := range recipients {
				content, ok := assignments[recipient]
				if !ok {
					t.Errorf("Recipient %s received no assignment", recipient)
					continue
				}
				if !valid[content] {
					t.Errorf("Recipient %s received %q, not in the response pool", recipient, content)
				}
			}
		})
	}
}

// TestDistribute_EqualCountsIsPermutation verifies that when recipients and
// responses match in number, every response is handed out exactly once.
func TestDistribute_EqualCountsIsPermutation(t *testing.T) {
	responses := makeResponses(8)
	recipients := makeRecipients(8)
	rng := rand.New(rand.NewSource(7))

	assignments := Distribute(responses, recipients, rng)

	seen := make(map[string]int)
	for _, content := range assignments {
		seen[content]++
	}

	if len(seen) != len(responses) {
		t.Fatalf("Expected %d distinct contents assigned, got %d", len(responses), len(seen))
	}
	for content, count := range seen {
		if count != 1 {
			t.Errorf("Content %q assigned %d times, expected exactly once", content, count)
		}
	}
}

// TestDistribute_WrapAroundIsBalanced verifies that with more recipients
// than responses, pool reuse stays even: usage counts differ by at most one.
func TestDistribute_WrapAroundIsBalanced(t *testing.T) {
	responses := makeResponses(3)
	recipients := makeRecipients(10)
	rng := rand.New(rand.NewSource(11))

	assignments := Distribute(responses, recipients, rng)

	counts := make(map[string]int)
	for _, content := range assignments {
		counts[content]++
	}

	if len(counts) != len(responses) {
		t.Fatalf("Expected all %d responses used, got %d", len(responses), len(counts))
	}

	min, max := len(recipients), 0
	for _, count := range counts {
		if count < min {
			min = count
		}
		if count > max {
			max = count
		}
	}
	if max-min > 1 {
		t.Errorf("Unbalanced reuse: counts range from %d to %d", min, max)
	}
}

// TestDistribute_ShuffleVariesAssignments verifies the shuffle actually
// permutes the pool: across seeds the first recipient does not always get
// the same response.
func TestDistribute_ShuffleVariesAssignments(t *testing.T) {
	responses := makeResponses(6)
	recipients := makeRecipients(6)

	seen := make(map[string]bool)
	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		assignments := Distribute(responses, recipients, rng)
		seen[assignments[recipients[0]]] = true
	}

	if len(seen) < 2 {
		t.Errorf("Expected varied assignments across seeds, got only %d distinct", len(seen))
	}
}

// TestDistribute_DeterministicForFixedSeed verifies a pinned rng yields a
// repeatable permutation.
func TestDistribute_DeterministicForFixedSeed(t *testing.T) {
	responses := makeResponses(5)
	recipients := makeRecipients(5)

	first := Distribute(responses, recipients, rand.New(rand.NewSource(99)))
	second := Distribute(responses, recipients, rand.New(rand.NewSource(99)))

	for recipient, content := range first {
		if second[recipient] != content {
			t.Errorf("Recipient %s: got %q then %q for the same seed", recipient, content, second[recipient])
		}
	}
}

func TestDistribute_EmptyInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	if got := Distribute(nil, makeRecipients(3), rng); len(got) != 0 {
		t.Errorf("Expected empty map for no responses, got %d entries", len(got))
	}
	if got := Distribute(makeResponses(3), nil, rng); len(got) != 0 {
		t.Errorf("Expected empty map for no recipients, got %d entries", len(got))
	}
}

// TestDistribute_InputUntouched verifies the caller's response slice is not
// reordered by the shuffle.
func TestDistribute_InputUntouched(t *testing.T) {
	responses := makeResponses(6)
	rng := rand.New(rand.NewSource(3))

	Distribute(responses, makeRecipients(6), rng)

	for i, r := range responses {
		if r.Content != fmt.Sprintf("thought-%d", i) {
			t.Errorf("Response %d reordered to %q", i, r.Content)
		}
	}
}
