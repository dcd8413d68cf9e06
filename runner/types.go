// Package runner implements the execution loop of spec.md §4.4: the
// turn-by-turn state machine that alternates model calls with parallel tool
// dispatch, routes control across agent-to-agent transfers, enforces
// per-agent and whole-run budgets, and supports pause/resume for
// human-in-the-loop approvals.
package runner

import (
	"sync"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/agent"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/message"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/tool"
)

// RunInput starts a fresh run (spec.md §4.4 data flow: "user input → Runner
// builds state").
type RunInput struct {
	// Agent is the agent the run starts under.
	Agent *agent.Agent
	// Registry resolves transfer targets and pause/resume agent references.
	// Must contain Agent and every agent reachable from it via sub-agents.
	Registry *agent.Registry
	// Messages seeds the initial message list (e.g. loaded session history
	// plus the new user turn). Must not be empty for guardrails to have
	// content to validate.
	Messages []message.Message
	// UserContext is opaque caller data forwarded to every tool and
	// instructions function.
	UserContext any
	// RunID identifies this run for tracing and hook events. A random id is
	// generated if empty.
	RunID string
	// Cancel, if set, is consulted between steps (spec.md §4.4 cancellation).
	Cancel *CancelSignal
}

// ResumeInput resumes a previously paused run (spec.md §6 "Pause/resume
// contract").
type ResumeInput struct {
	// State is the serialized payload a prior paused Result returned.
	State []byte
	// Registry resolves the agent names embedded in State.
	Registry *agent.Registry
	// Approvals records the caller's grant/deny decisions for every call
	// that was pending when the run paused.
	Approvals []tool.Approval
	RunID     string
	Cancel    *CancelSignal
}

// StepResult is one model-call turn (spec.md §3).
type StepResult struct {
	Step         int
	Text         string
	FinishReason string
	ToolCalls    []StepToolCall
}

// StepToolCall is the per-call record inside a StepResult.
type StepToolCall struct {
	CallID    string
	ToolName  string
	Arguments []byte
	Result    any
	Err       string
}

// AgentMetric is the per-agent slice of Metadata.AgentMetrics.
type AgentMetric struct {
	AgentName        string
	Turns            int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ToolCalls        int
	DurationMs       int64
}

// Metadata is the run-result metadata record of spec.md §6.
type Metadata struct {
	TotalTokens      int
	PromptTokens     int
	CompletionTokens int
	FinishReason     string
	TotalToolCalls   int
	HandoffChain     []string
	AgentMetrics     []AgentMetric

	// GuardrailPromptTokens/GuardrailCompletionTokens record tokens spent by
	// guardrails that invoke models, kept separate from the per-agent
	// buckets above (spec.md §4.5). The core guardrail.Guardrail contract
	// has no channel to report such usage; these fields are always zero
	// until a guardrail implementation is wired to report it out-of-band
	// (see DESIGN.md).
	GuardrailPromptTokens     int
	GuardrailCompletionTokens int

	// PendingApprovals lists the calls awaiting a decision, populated only
	// when the run paused for approval.
	PendingApprovals []tool.Call
}

// Result is the run-result record returned by Run and Resume (spec.md §6).
type Result struct {
	// Status is one of "complete", "failed", "paused".
	Status string
	// FinalOutput is the parsed output-schema value when the agent has one,
	// or the raw assistant text otherwise.
	FinalOutput any
	Messages    []message.Message
	Steps       []StepResult
	// State is the serialized run state, present only when Status=="paused".
	State    []byte
	Metadata Metadata
	// Err is the terminal error for Status=="failed", nil otherwise.
	Err error
}

// CancelSignal is a single-shot, concurrency-safe cancellation flag
// (spec.md §4.4: "the runner accepts an optional cancellation signal
// (single-shot)").
type CancelSignal struct {
	fired chan struct{}
	once  sync.Once
}

// NewCancelSignal returns an unfired CancelSignal.
func NewCancelSignal() *CancelSignal {
	return &CancelSignal{fired: make(chan struct{})}
}

// Cancel fires the signal. Subsequent calls are no-ops.
func (c *CancelSignal) Cancel() {
	c.once.Do(func() { close(c.fired) })
}

// Cancelled reports whether Cancel has been called.
func (c *CancelSignal) Cancelled() bool {
	if c == nil {
		return false
	}
	select {
	case <-c.fired:
		return true
	default:
		return false
	}
}
