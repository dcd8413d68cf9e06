// Package hooks implements the event/hook bus of spec.md §4.9 / §6: typed
// lifecycle events (agent_start, agent_end, agent_tool_start, agent_tool_end,
// agent_transfer) delivered to per-agent and per-run subscribers on a
// fire-and-forget basis.
package hooks

import "time"

// EventType enumerates the lifecycle events this module publishes.
type EventType string

const (
	AgentStart     EventType = "agent_start"
	AgentEnd       EventType = "agent_end"
	AgentToolStart EventType = "agent_tool_start"
	AgentToolEnd   EventType = "agent_tool_end"
	AgentTransfer  EventType = "agent_transfer"
)

// Event is the common surface every published event implements.
type Event interface {
	Type() EventType
	RunID() string
	AgentName() string
	Timestamp() int64
}

type baseEvent struct {
	eventType EventType
	runID     string
	agentName string
	timestamp int64
}

func newBase(t EventType, runID, agentName string) baseEvent {
	return baseEvent{eventType: t, runID: runID, agentName: agentName, timestamp: time.Now().UnixMilli()}
}

func (e baseEvent) Type() EventType    { return e.eventType }
func (e baseEvent) RunID() string      { return e.runID }
func (e baseEvent) AgentName() string  { return e.agentName }
func (e baseEvent) Timestamp() int64   { return e.timestamp }

// AgentStartEvent fires when an agent begins processing a turn.
type AgentStartEvent struct {
	baseEvent
}

// NewAgentStartEvent constructs an AgentStartEvent.
func NewAgentStartEvent(runID, agentName string) *AgentStartEvent {
	return &AgentStartEvent{baseEvent: newBase(AgentStart, runID, agentName)}
}

// AgentEndEvent is published by the runner after each turn that completes
// the run, transfers, or loops to another turn. Turns that fail or pause
// publish none, so events the runner emits carry a nil Err.
type AgentEndEvent struct {
	baseEvent
	Output string
	Err    error
}

// NewAgentEndEvent constructs an AgentEndEvent.
func NewAgentEndEvent(runID, agentName, output string, err error) *AgentEndEvent {
	return &AgentEndEvent{baseEvent: newBase(AgentEnd, runID, agentName), Output: output, Err: err}
}

// AgentToolStartEvent fires immediately before a tool call is dispatched.
type AgentToolStartEvent struct {
	baseEvent
	ToolName string
	CallID   string
}

// NewAgentToolStartEvent constructs an AgentToolStartEvent.
func NewAgentToolStartEvent(runID, agentName, toolName, callID string) *AgentToolStartEvent {
	return &AgentToolStartEvent{baseEvent: newBase(AgentToolStart, runID, agentName), ToolName: toolName, CallID: callID}
}

// AgentToolEndEvent fires after a tool call completes, with its duration and
// its error (nil on success). The tool's result value is not carried.
type AgentToolEndEvent struct {
	baseEvent
	ToolName string
	CallID   string
	Duration time.Duration
	Err      error
}

// NewAgentToolEndEvent constructs an AgentToolEndEvent.
func NewAgentToolEndEvent(runID, agentName, toolName, callID string, duration time.Duration, err error) *AgentToolEndEvent {
	return &AgentToolEndEvent{
		baseEvent: newBase(AgentToolEnd, runID, agentName),
		ToolName:  toolName,
		CallID:    callID,
		Duration:  duration,
		Err:       err,
	}
}

// AgentTransferEvent fires when control hands off from one agent to another.
// SourceAgent is included per spec.md §6 ("per-run events include... the
// source agent for transfers"); AgentName (from baseEvent) is the destination.
type AgentTransferEvent struct {
	baseEvent
	SourceAgent string
	Reason      string
}

// NewAgentTransferEvent constructs an AgentTransferEvent. destAgent becomes
// the event's AgentName.
func NewAgentTransferEvent(runID, sourceAgent, destAgent, reason string) *AgentTransferEvent {
	return &AgentTransferEvent{
		baseEvent:   newBase(AgentTransfer, runID, destAgent),
		SourceAgent: sourceAgent,
		Reason:      reason,
	}
}
