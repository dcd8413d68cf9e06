// Package usage implements the per-run token/tool-call counters described in
// spec.md §4.1. A Tracker is owned exclusively by one runner and mutated
// from its single logical timeline; it carries no internal locking.
package usage

// Tracker accumulates prompt tokens, completion tokens and tool-call counts.
// Totals are derived on read, never stored, so Add/IncrementToolCalls can
// never drift out of sync with Snapshot.
type Tracker struct {
	promptTokens     int
	completionTokens int
	toolCalls        int
}

// New returns a zeroed Tracker.
func New() *Tracker {
	return &Tracker{}
}

// Add accrues promptDelta prompt tokens and completionDelta completion
// tokens. Negative deltas are not rejected (the model's own accounting is
// trusted) but never occur in practice.
func (t *Tracker) Add(promptDelta, completionDelta int) {
	t.promptTokens += promptDelta
	t.completionTokens += completionDelta
}

// IncrementToolCalls increments the tool-call counter by n, defaulting to 1
// when n is 0. A dispatched call counts once regardless of whether it
// ultimately succeeds, fails schema validation, or needs approval (spec
// §4.2: "the model is accountable").
func (t *Tracker) IncrementToolCalls(n int) {
	if n == 0 {
		n = 1
	}
	t.toolCalls += n
}

// Snapshot is an immutable point-in-time view of a Tracker.
type Snapshot struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ToolCalls        int
}

// Snapshot returns the tracker's current counters.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		PromptTokens:     t.promptTokens,
		CompletionTokens: t.completionTokens,
		TotalTokens:      t.promptTokens + t.completionTokens,
		ToolCalls:        t.toolCalls,
	}
}

// Merge folds other's counters into t. Used to combine a "guardrails" bucket
// tracker back into reporting without charging it to per-agent metrics
// (spec §4.5).
func (t *Tracker) Merge(other Snapshot) {
	t.promptTokens += other.PromptTokens
	t.completionTokens += other.CompletionTokens
	t.toolCalls += other.ToolCalls
}
