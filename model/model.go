// Package model defines the external Model interface the engine consumes
// (spec.md §6). Concrete provider adapters (Anthropic, OpenAI, Bedrock, ...)
// are explicitly out of scope (spec.md §1); this package only fixes the
// contract and a process-wide default reference (spec.md §9).
package model

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/message"
)

// ToolSpec is the model-ready description of one callable tool: a name, a
// human description, and a JSON-Schema document for its arguments. Built by
// normalizing an agent.InputSchema; kept independent of the agent package so
// this package has no dependency on it.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Settings mirrors spec.md §9's frozen modelSettings shape. Every field is a
// pointer so "unset" is distinguishable from "explicit zero".
type Settings struct {
	Temperature      *float64
	TopP             *float64
	PresencePenalty  *float64
	FrequencyPenalty *float64
	// ResponseTokens caps tokens in a single model response (spec.md §9
	// resolves the maxTokens/responseTokens ambiguity this way).
	ResponseTokens *int
	// MaxTokens caps total tokens across the whole run.
	MaxTokens *int
}

// Request is the payload passed to Generate for one model call.
type Request struct {
	SystemMessage string
	Messages      []message.Message
	Tools         []ToolSpec
	Settings      Settings
}

// ToolCallRequest is one tool invocation the model asked for in its response.
type ToolCallRequest struct {
	CallID    string
	ToolName  string
	Arguments json.RawMessage
}

// FinishReason enumerates why a model call stopped producing output.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
	FinishError     FinishReason = "error"
)

// TokenUsage reports the token accounting for one model call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// Response is the result of one Generate call.
type Response struct {
	AssistantText string
	ToolCalls     []ToolCallRequest
	FinishReason  FinishReason
	Usage         TokenUsage
}

// TextDelta is one incremental chunk of a streaming Generate call.
type TextDelta struct {
	Text string
}

// Model is the external model endpoint the runner drives. Implementations
// live outside this module (spec.md §1).
type Model interface {
	// Generate performs one non-streaming model call. Implementations must
	// honor ctx cancellation (spec.md §4.4 cancellation).
	Generate(ctx context.Context, req Request) (Response, error)
}

// StreamingModel is implemented by models that can additionally expose
// incremental text deltas alongside the same final Response payload
// (spec.md §6 "streaming variants").
type StreamingModel interface {
	Model
	GenerateStream(ctx context.Context, req Request, onDelta func(TextDelta)) (Response, error)
}

var defaultModel atomic.Pointer[Model]

// SetDefault installs the process-wide default Model. Must be called before
// any run starts; the runner reads this value once when a run (or a resumed
// run) starts and uses it for that whole run, avoiding mid-run drift
// (spec.md §9).
func SetDefault(m Model) {
	defaultModel.Store(&m)
}

// Default returns the process-wide default Model, or nil if none was set.
func Default() Model {
	p := defaultModel.Load()
	if p == nil {
		return nil
	}
	return *p
}
