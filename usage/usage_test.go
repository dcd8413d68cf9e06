package usage_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/usage"
)

func TestTrackerTotalsDerived(t *testing.T) {
	tr := usage.New()
	tr.Add(10, 5)
	tr.Add(3, 2)
	tr.IncrementToolCalls(0)
	tr.IncrementToolCalls(2)

	snap := tr.Snapshot()
	assert.Equal(t, 13, snap.PromptTokens)
	assert.Equal(t, 7, snap.CompletionTokens)
	assert.Equal(t, 20, snap.TotalTokens)
	assert.Equal(t, 3, snap.ToolCalls)
}

func TestMerge(t *testing.T) {
	tr := usage.New()
	tr.Add(1, 1)
	tr.Merge(usage.Snapshot{PromptTokens: 4, CompletionTokens: 2, ToolCalls: 1})
	snap := tr.Snapshot()
	assert.Equal(t, 5, snap.PromptTokens)
	assert.Equal(t, 3, snap.CompletionTokens)
	assert.Equal(t, 1, snap.ToolCalls)
}

// TestSnapshotTotalsEqualSumOfAddsProperty verifies the universal invariant
// of spec.md §8 that totalTokens always equals the sum of every step's
// prompt+completion tokens, for arbitrary sequences of non-negative deltas.
func TestSnapshotTotalsEqualSumOfAddsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("total tokens equals sum of every Add call", prop.ForAll(
		func(deltas []int) bool {
			tr := usage.New()
			wantPrompt, wantCompletion := 0, 0
			for i, d := range deltas {
				if d < 0 {
					d = -d
				}
				prompt, completion := d, d+i
				tr.Add(prompt, completion)
				wantPrompt += prompt
				wantCompletion += completion
			}
			snap := tr.Snapshot()
			return snap.PromptTokens == wantPrompt &&
				snap.CompletionTokens == wantCompletion &&
				snap.TotalTokens == wantPrompt+wantCompletion
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.Property("tool call count equals number of IncrementToolCalls(1) calls", prop.ForAll(
		func(n int) bool {
			if n < 0 {
				n = -n
			}
			if n > 500 {
				n = 500
			}
			tr := usage.New()
			for i := 0; i < n; i++ {
				tr.IncrementToolCalls(1)
			}
			return tr.Snapshot().ToolCalls == n
		},
		gen.IntRange(0, 500),
	))

	properties.TestingRun(t)
}
