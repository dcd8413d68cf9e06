// Package message defines the wire-level conversation record shared by the
// runner, the session store and every tool/model adapter.
package message

import "encoding/json"

// Role identifies who produced a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType discriminates the variants of Part.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// Part is one element of a Message's content when the content is not a bare
// string. Exactly one of the typed fields is populated, selected by Type.
type Part struct {
	Type PartType `json:"type"`

	// Text holds the payload for PartText.
	Text string `json:"text,omitempty"`

	// CallID identifies a tool-call/tool-result pair. Populated for
	// PartToolCall and PartToolResult.
	CallID string `json:"callId,omitempty"`

	// ToolName is the tool being invoked. Populated for PartToolCall.
	ToolName string `json:"toolName,omitempty"`

	// Arguments is the raw JSON arguments the model supplied. Populated for
	// PartToolCall.
	Arguments json.RawMessage `json:"arguments,omitempty"`

	// Result is the raw JSON result payload. Populated for PartToolResult.
	Result json.RawMessage `json:"result,omitempty"`

	// IsError marks a PartToolResult produced from a tool failure rather
	// than a successful execution.
	IsError bool `json:"isError,omitempty"`
}

// Message is an immutable, append-only conversation record. Content is
// either a plain string (Text non-empty, Parts nil) or an ordered sequence
// of Parts (Text empty, Parts non-nil). Once constructed a Message must not
// be mutated; Clone producers always return a value suitable for storage.
type Message struct {
	Role  Role   `json:"role"`
	Text  string `json:"text,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// NewText builds a plain-text Message.
func NewText(role Role, text string) Message {
	return Message{Role: role, Text: text}
}

// NewParts builds a Message whose content is a sequence of Parts.
func NewParts(role Role, parts ...Part) Message {
	return Message{Role: role, Parts: append([]Part(nil), parts...)}
}

// IsTextOnly reports whether m carries its content as a plain string.
func (m Message) IsTextOnly() bool {
	return m.Parts == nil
}

// ConcatText returns the concatenation of every text-bearing portion of the
// message: the Text field if set, plus every PartText part's Text in order.
// Non-text parts are ignored, matching the extraction rule used for guardrail
// input and for transfer query extraction.
func (m Message) ConcatText() string {
	if m.IsTextOnly() {
		return m.Text
	}
	out := m.Text
	for _, p := range m.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// ToolCalls returns every PartToolCall in the message, in order.
func (m Message) ToolCalls() []Part {
	var out []Part
	for _, p := range m.Parts {
		if p.Type == PartToolCall {
			out = append(out, p)
		}
	}
	return out
}

// ToolResults returns every PartToolResult in the message, in order.
func (m Message) ToolResults() []Part {
	var out []Part
	for _, p := range m.Parts {
		if p.Type == PartToolResult {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns a deep copy safe to store independently of m.
func (m Message) Clone() Message {
	out := Message{Role: m.Role, Text: m.Text}
	if m.Parts != nil {
		out.Parts = make([]Part, len(m.Parts))
		for i, p := range m.Parts {
			cp := p
			if p.Arguments != nil {
				cp.Arguments = append(json.RawMessage(nil), p.Arguments...)
			}
			if p.Result != nil {
				cp.Result = append(json.RawMessage(nil), p.Result...)
			}
			out.Parts[i] = cp
		}
	}
	return out
}

// CloneList deep-copies an ordered list of messages.
func CloneList(in []Message) []Message {
	out := make([]Message, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}

// FirstUserText walks msgs from the oldest entry and returns the concatenated
// text of the first user-role message found. Used by the transfer subsystem
// to extract the originating query (spec §4.3). Returns "" if none is found.
func FirstUserText(msgs []Message) string {
	for _, m := range msgs {
		if m.Role == RoleUser {
			return m.ConcatText()
		}
	}
	return ""
}

// PendingToolCallIDs returns the call ids of the tool-call parts in
// transcript that have no matching tool-result part later in the
// transcript. Used to validate invariant 1 of spec.md §8 in tests.
func PendingToolCallIDs(transcript []Message) []string {
	open := map[string]bool{}
	var order []string
	for _, m := range transcript {
		for _, p := range m.ToolCalls() {
			if !open[p.CallID] {
				open[p.CallID] = true
				order = append(order, p.CallID)
			}
		}
		for _, p := range m.ToolResults() {
			delete(open, p.CallID)
		}
	}
	var out []string
	for _, id := range order {
		if open[id] {
			out = append(out, id)
		}
	}
	return out
}
