// Package transfer implements the handoff subsystem of spec.md §4.3: one
// synthetic tool per sub-agent, detection of the transfer marker in a tool
// result, and the message-list reset performed when a transfer is accepted.
package transfer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/agent"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/message"
)

// toolNamePrefix is the fixed prefix of every synthesized transfer tool
// (spec.md §4.3: "transfer_to_<slug(S.name)>").
const toolNamePrefix = "transfer_to_"

// ToolName returns the synthetic tool name for transferring to subAgentName.
func ToolName(subAgentName string) string {
	return toolNamePrefix + agent.Slug(subAgentName)
}

// Signal is the tagged-variant transfer marker of spec.md §6 and §9 (Design
// Notes: "represent it as a tagged variant... rather than duck-checked").
type Signal struct {
	Transfer  bool   `json:"__transfer"`
	AgentName string `json:"agentName"`
	Reason    string `json:"reason,omitempty"`
	Context   string `json:"context,omitempty"`
}

// transferArgs is the input schema accepted by every synthesized transfer
// tool (spec.md §4.3): an optional reason plus an optional forwarded
// context blob.
type transferArgs struct {
	Reason  string `json:"reason,omitempty"`
	Context string `json:"context,omitempty"`
}

var transferInputSchema = mustTransferSchema()

func mustTransferSchema() agent.InputSchema {
	s, err := agent.FromNativeStruct(&transferArgs{})
	if err != nil {
		panic("transfer: input schema must compile: " + err.Error())
	}
	return s
}

// SyntheticTools builds one ToolDescriptor per sub-agent of a, in the order
// they are listed. Each tool's Execute only signals the transfer; it never
// performs it (spec.md §4.3: "does not itself perform the transfer").
func SyntheticTools(a *agent.Agent) []agent.ToolDescriptor {
	tools := make([]agent.ToolDescriptor, 0, len(a.SubAgents))
	for _, sub := range a.SubAgents {
		sub := sub
		desc := fmt.Sprintf("Transfer the conversation to the %s agent. Use this when: %s", sub.Name, sub.TransferDescription)
		tools = append(tools, agent.ToolDescriptor{
			Name:        ToolName(sub.Name),
			Description: desc,
			Schema:      transferInputSchema,
			Enabled:     agent.AlwaysEnabled,
			Execute: func(_ context.Context, args json.RawMessage, _ *agent.RunContext) (any, error) {
				var in transferArgs
				if len(args) > 0 {
					if err := json.Unmarshal(args, &in); err != nil {
						return nil, fmt.Errorf("transfer: decoding arguments: %w", err)
					}
				}
				return Signal{Transfer: true, AgentName: sub.Name, Reason: in.Reason, Context: in.Context}, nil
			},
		})
	}
	return tools
}

// ParseMarker inspects a tool result value for the transfer marker. Results
// may arrive either as the Go Signal value directly (synthetic tools return
// it natively) or as re-marshaled JSON (after a round trip through a tool
// message part); both are handled.
func ParseMarker(result any) (Signal, bool) {
	switch v := result.(type) {
	case Signal:
		return v, v.Transfer
	case *Signal:
		if v == nil {
			return Signal{}, false
		}
		return *v, v.Transfer
	case json.RawMessage:
		return parseMarkerJSON(v)
	case []byte:
		return parseMarkerJSON(v)
	case map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return Signal{}, false
		}
		return parseMarkerJSON(raw)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return Signal{}, false
		}
		return parseMarkerJSON(raw)
	}
}

func parseMarkerJSON(raw []byte) (Signal, bool) {
	var s Signal
	if err := json.Unmarshal(raw, &s); err != nil {
		return Signal{}, false
	}
	return s, s.Transfer
}

// Resolve looks up sig.AgentName among current's sub-agents, matching the
// "transfer to unknown agent" error kind of spec.md §7 (non-fatal: the
// caller drops the signal and continues if ok is false).
func Resolve(current *agent.Agent, sig Signal) (*agent.Agent, bool) {
	for _, sub := range current.SubAgents {
		if sub.Name == sig.AgentName {
			return sub, true
		}
	}
	return nil, false
}

// TransferNoteSentinel prefixes the synthetic system note inserted into the
// callee's message list, so tests and downstream consumers can recognize it
// without string-matching the whole message.
const TransferNoteSentinel = "Transferred from"

// Reset builds the callee's new message list per spec.md §4.3: the
// originating user query plus a synthetic system note explaining the
// transfer, discarding every prior assistant turn. callerMessages is the
// full message list as seen by the caller agent just before the transfer.
func Reset(callerAgentName string, callerMessages []message.Message, sig Signal) []message.Message {
	query := message.FirstUserText(callerMessages)
	note := fmt.Sprintf("%s %s.", TransferNoteSentinel, callerAgentName)
	if sig.Reason != "" {
		note += " Reason: " + sig.Reason
	}
	if sig.Context != "" {
		note += " Context: " + sig.Context
	}
	return []message.Message{
		message.NewText(message.RoleSystem, note),
		message.NewText(message.RoleUser, query),
	}
}
