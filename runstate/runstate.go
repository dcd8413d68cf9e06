// Package runstate holds the serializable snapshot of an in-progress run
// (spec.md §3's "Run state"), including the pause/resume wire format.
package runstate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/agent"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/message"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/usage"
)

// AgentMetrics is the per-agent slice of the final metadata record.
type AgentMetrics struct {
	Turns            int           `json:"turns"`
	PromptTokens     int           `json:"promptTokens"`
	CompletionTokens int           `json:"completionTokens"`
	TotalTokens      int           `json:"totalTokens"`
	ToolCalls        int           `json:"toolCalls"`
	Duration         time.Duration `json:"durationNs"`
}

// PendingApproval is the run-state shape of an outstanding approval request:
// a tool name, its requested arguments, and whether it has been granted. It
// mirrors tool.Approval structurally without importing the tool package, so
// runstate stays a leaf alongside agent/message/usage.
type PendingApproval struct {
	ToolName  string          `json:"toolName"`
	Arguments json.RawMessage `json:"arguments"`
	Approved  bool            `json:"approved"`
}

// RunState is the in-memory, mutable record a Runner advances turn by turn.
// It is not itself safe for concurrent use; it is owned by exactly one run
// (spec.md §5).
type RunState struct {
	Registry     *agent.Registry
	RootAgent    *agent.Agent
	CurrentAgent *agent.Agent

	Messages     []message.Message
	UserContext  any
	Step         int
	HandoffChain []string

	// StepsUnderAgent counts turns since the current agent became current,
	// checked against its MaxSteps; a transfer resets it to 0 while Step
	// (the global, StepResult-numbering counter) keeps increasing
	// (spec.md §4.4: "a transfer resets the steps under this agent
	// counter; the global step counter continues").
	StepsUnderAgent int

	AgentMetrics map[string]*AgentMetrics
	Usage        *usage.Tracker

	PendingApprovals []PendingApproval
}

// New builds a fresh RunState for a run starting at root under registry.
func New(registry *agent.Registry, root *agent.Agent, userContext any, initial []message.Message) *RunState {
	return &RunState{
		Registry:        registry,
		RootAgent:       root,
		CurrentAgent:    root,
		Messages:        message.CloneList(initial),
		UserContext:     userContext,
		Step:            0,
		StepsUnderAgent: 0,
		HandoffChain:    []string{root.Name},
		AgentMetrics:    map[string]*AgentMetrics{},
		Usage:           usage.New(),
	}
}

// MetricsFor returns (creating if absent) the AgentMetrics bucket for name.
func (s *RunState) MetricsFor(name string) *AgentMetrics {
	m, ok := s.AgentMetrics[name]
	if !ok {
		m = &AgentMetrics{}
		s.AgentMetrics[name] = m
	}
	return m
}

// Transfer appends name to the handoff chain, switches the current agent,
// and resets the step counter scoped to that agent (spec.md §4.4: "a
// transfer resets the steps under this agent counter; the global step
// counter continues"). The caller is responsible for resetting Messages.
func (s *RunState) Transfer(to *agent.Agent) {
	s.HandoffChain = append(s.HandoffChain, to.Name)
	s.CurrentAgent = to
	s.StepsUnderAgent = 0
}

// wireState is the JSON shape of a paused RunState (spec.md §3: "Serializable
// to a stable JSON shape for pause/resume"). Agents are referenced by name,
// resolved against a Registry on Restore, per the design notes' "name →
// index in a registry" re-architecture of the original's cyclic object
// references.
type wireState struct {
	RootAgent        string                   `json:"rootAgent"`
	CurrentAgent     string                   `json:"currentAgent"`
	Messages         []message.Message        `json:"messages"`
	UserContext      json.RawMessage          `json:"userContext,omitempty"`
	Step             int                      `json:"step"`
	StepsUnderAgent  int                      `json:"stepsUnderAgent"`
	HandoffChain     []string                 `json:"handoffChain"`
	AgentMetrics     map[string]*AgentMetrics `json:"agentMetrics"`
	Usage            usage.Snapshot           `json:"usage"`
	PendingApprovals []PendingApproval        `json:"pendingApprovals,omitempty"`
}

// Serialize produces the pause/resume wire payload for s.
func (s *RunState) Serialize() ([]byte, error) {
	userCtx, err := json.Marshal(s.UserContext)
	if err != nil {
		return nil, fmt.Errorf("runstate: encoding user context: %w", err)
	}
	w := wireState{
		RootAgent:        s.RootAgent.Name,
		CurrentAgent:     s.CurrentAgent.Name,
		Messages:         s.Messages,
		UserContext:      userCtx,
		Step:             s.Step,
		StepsUnderAgent:  s.StepsUnderAgent,
		HandoffChain:     s.HandoffChain,
		AgentMetrics:     s.AgentMetrics,
		Usage:            s.Usage.Snapshot(),
		PendingApprovals: s.PendingApprovals,
	}
	return json.Marshal(w)
}

// Restore rebuilds a RunState from a Serialize payload, resolving agent
// names against registry. Returns an error if either agent name is no
// longer present in the registry.
func Restore(data []byte, registry *agent.Registry) (*RunState, error) {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("runstate: decoding state: %w", err)
	}
	root, ok := registry.Lookup(w.RootAgent)
	if !ok {
		return nil, fmt.Errorf("runstate: root agent %q not found in registry", w.RootAgent)
	}
	current, ok := registry.Lookup(w.CurrentAgent)
	if !ok {
		return nil, fmt.Errorf("runstate: current agent %q not found in registry", w.CurrentAgent)
	}

	var userContext any
	if len(w.UserContext) > 0 {
		if err := json.Unmarshal(w.UserContext, &userContext); err != nil {
			return nil, fmt.Errorf("runstate: decoding user context: %w", err)
		}
	}

	metrics := w.AgentMetrics
	if metrics == nil {
		metrics = map[string]*AgentMetrics{}
	}

	tracker := usage.New()
	tracker.Add(w.Usage.PromptTokens, w.Usage.CompletionTokens)
	if w.Usage.ToolCalls > 0 {
		tracker.IncrementToolCalls(w.Usage.ToolCalls)
	}

	return &RunState{
		Registry:         registry,
		RootAgent:        root,
		CurrentAgent:     current,
		Messages:         message.CloneList(w.Messages),
		UserContext:      userContext,
		Step:             w.Step,
		StepsUnderAgent:  w.StepsUnderAgent,
		HandoffChain:     append([]string(nil), w.HandoffChain...),
		AgentMetrics:     metrics,
		Usage:            tracker,
		PendingApprovals: append([]PendingApproval(nil), w.PendingApprovals...),
	}, nil
}
