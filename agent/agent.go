// Package agent defines the static configuration data model of spec.md §3:
// Agent, Tool descriptor, the run context wrapper passed into every tool and
// dynamic predicate, and the process-wide agent Registry used to make
// sub-agent references trivially serializable (spec.md §9).
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/guardrail"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/hooks"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/message"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/model"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/usage"
)

// ToolMetadata is the optional descriptive metadata a tool may carry
// (spec.md §3): severity, category and the role required to invoke it. The
// core never interprets these values; they are surfaced to approval
// policies and observability only.
type ToolMetadata struct {
	Severity     string
	Category     string
	RequiredRole string
}

// EnabledFunc decides, per run, whether a tool descriptor is offered to the
// model. Evaluated fresh on every tool.BuildSet call (spec.md §4.2).
type EnabledFunc func(ctx context.Context, rc *RunContext) (bool, error)

// AlwaysEnabled is the default EnabledFunc.
func AlwaysEnabled(context.Context, *RunContext) (bool, error) { return true, nil }

// ExecuteFunc runs a validated, approved tool call and returns its result.
// The returned value is marshaled to JSON for the tool-result message part;
// returning a value containing the transfer marker signals a handoff
// (spec.md §4.3, §6).
type ExecuteFunc func(ctx context.Context, args json.RawMessage, rc *RunContext) (any, error)

// ApprovalFunc decides whether a specific call needs human approval before
// it may execute. Returning true means approval is required; the dispatcher
// then looks for a granted entry with the same tool name and arguments in the
// approvals it was given (spec.md §4.2 step 2).
type ApprovalFunc func(ctx context.Context, rc *RunContext, args json.RawMessage, callID string) (bool, error)

// ToolDescriptor is the exposed tool contract of spec.md §3/§6.
type ToolDescriptor struct {
	Name        string
	Description string
	Schema      InputSchema
	Enabled     EnabledFunc
	Execute     ExecuteFunc
	Approval    ApprovalFunc
	Metadata    ToolMetadata
}

// ModelSettings is the frozen set of per-agent model parameters (spec.md §9).
type ModelSettings struct {
	Temperature      *float64
	TopP             *float64
	PresencePenalty  *float64
	FrequencyPenalty *float64
	ResponseTokens   *int
	MaxTokens        *int
}

// ToModelSettings converts to the model package's wire form.
func (s ModelSettings) ToModelSettings() model.Settings {
	return model.Settings{
		Temperature:      s.Temperature,
		TopP:             s.TopP,
		PresencePenalty:  s.PresencePenalty,
		FrequencyPenalty: s.FrequencyPenalty,
		ResponseTokens:   s.ResponseTokens,
		MaxTokens:        s.MaxTokens,
	}
}

// InstructionsFunc resolves an agent's system instructions dynamically from
// the run context, the function form spec.md §3 allows.
type InstructionsFunc func(ctx context.Context, rc *RunContext) (string, error)

// OutputSchema validates and parses an agent's final assistant text
// (spec.md §4.4 step 8). Parse defaults to json.Unmarshal into a
// map[string]any when left nil.
type OutputSchema struct {
	Schema InputSchema
	Parse  func(text string) (any, error)
}

func (o *OutputSchema) parse(text string) (any, error) {
	if o.Parse != nil {
		return o.Parse(text)
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("agent: output did not parse against schema: %w", err)
	}
	if err := o.Schema.Validate(json.RawMessage(text)); err != nil {
		return nil, err
	}
	return v, nil
}

// ParseOutput validates and decodes text per the output schema, matching the
// "surfaced, not retried" behavior of spec.md §4.4 step 8.
func (o *OutputSchema) ParseOutput(text string) (any, error) { return o.parse(text) }

// Agent is the immutable-at-runtime configuration of spec.md §3. Construct
// with New and adjust with Clone; never mutate a published Agent's fields.
type Agent struct {
	Name                string
	Instructions        string
	InstructionsFn       InstructionsFunc
	Model               model.Model
	Tools               []ToolDescriptor
	SubAgents           []*Agent
	TransferDescription string
	OutputSchema        *OutputSchema
	Guardrails          []guardrail.Guardrail
	ModelSettings       ModelSettings
	MaxSteps            int
	Hooks               *hooks.Bus
}

// Option mutates an Agent under construction, following the teacher's
// functional-options idiom.
type Option func(*Agent)

// WithInstructions sets a literal instructions string.
func WithInstructions(s string) Option { return func(a *Agent) { a.Instructions = s } }

// WithInstructionsFunc sets the function form of instructions.
func WithInstructionsFunc(fn InstructionsFunc) Option { return func(a *Agent) { a.InstructionsFn = fn } }

// WithModel binds the agent to a Model.
func WithModel(m model.Model) Option { return func(a *Agent) { a.Model = m } }

// WithTools appends tool descriptors in the given order.
func WithTools(tools ...ToolDescriptor) Option {
	return func(a *Agent) { a.Tools = append(a.Tools, tools...) }
}

// WithSubAgents appends sub-agents this agent may transfer control to.
func WithSubAgents(subs ...*Agent) Option {
	return func(a *Agent) { a.SubAgents = append(a.SubAgents, subs...) }
}

// WithTransferDescription sets the text used in synthesized transfer-tool
// descriptions ("Use this when: <description>", spec.md §4.3).
func WithTransferDescription(s string) Option { return func(a *Agent) { a.TransferDescription = s } }

// WithOutputSchema sets the optional output validator.
func WithOutputSchema(o *OutputSchema) Option { return func(a *Agent) { a.OutputSchema = o } }

// WithGuardrails appends guardrails in execution order.
func WithGuardrails(g ...guardrail.Guardrail) Option {
	return func(a *Agent) { a.Guardrails = append(a.Guardrails, g...) }
}

// WithModelSettings sets the agent's model settings record.
func WithModelSettings(s ModelSettings) Option { return func(a *Agent) { a.ModelSettings = s } }

// WithMaxSteps sets the per-agent step budget (spec.md §4.4).
func WithMaxSteps(n int) Option { return func(a *Agent) { a.MaxSteps = n } }

// WithHooks attaches a per-agent hook bus. The runner does not publish
// events to it; it publishes only to the Bus given to runner.WithHooks.
func WithHooks(b *hooks.Bus) Option { return func(a *Agent) { a.Hooks = b } }

// defaultMaxSteps is applied when WithMaxSteps is never supplied, matching
// the teacher's habit of a conservative non-zero default rather than an
// unbounded loop.
const defaultMaxSteps = 10

// New constructs an Agent, applying opts in order.
func New(name string, opts ...Option) *Agent {
	a := &Agent{Name: name, MaxSteps: defaultMaxSteps}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Clone returns a new Agent with overrides applied on top of a's current
// configuration, per spec.md §3 ("cloning produces a new agent with
// overrides"). The original is left untouched.
func (a *Agent) Clone(opts ...Option) *Agent {
	clone := &Agent{
		Name:                a.Name,
		Instructions:        a.Instructions,
		InstructionsFn:      a.InstructionsFn,
		Model:               a.Model,
		Tools:               append([]ToolDescriptor(nil), a.Tools...),
		SubAgents:           append([]*Agent(nil), a.SubAgents...),
		TransferDescription: a.TransferDescription,
		OutputSchema:        a.OutputSchema,
		Guardrails:          append([]guardrail.Guardrail(nil), a.Guardrails...),
		ModelSettings:       a.ModelSettings,
		MaxSteps:            a.MaxSteps,
		Hooks:               a.Hooks,
	}
	for _, opt := range opts {
		opt(clone)
	}
	return clone
}

// ResolveInstructions evaluates the agent's instructions, preferring the
// function form when set (spec.md §3).
func (a *Agent) ResolveInstructions(ctx context.Context, rc *RunContext) (string, error) {
	if a.InstructionsFn != nil {
		return a.InstructionsFn(ctx, rc)
	}
	return a.Instructions, nil
}

// Slug lowercases name and replaces whitespace runs with underscores,
// matching the transfer-tool naming rule of spec.md §4.3.
func Slug(name string) string {
	var b strings.Builder
	prevUnderscore := false
	for _, r := range strings.ToLower(name) {
		if r == ' ' || r == '\t' || r == '\n' {
			if !prevUnderscore {
				b.WriteByte('_')
				prevUnderscore = true
			}
			continue
		}
		b.WriteRune(r)
		prevUnderscore = false
	}
	return b.String()
}

// RunContext is the wrapper passed into every tool invocation and dynamic
// predicate (spec.md §3 "Run context wrapper"). UserContext is opaque
// caller data; CurrentAgent, Messages and Usage reflect the live run.
type RunContext struct {
	UserContext  any
	CurrentAgent *Agent
	Messages     []message.Message
	Usage        *usage.Tracker

	// Cancel, when non-nil, reports whether the run's cancellation signal
	// has fired. Tools that want to honor cancellation read it explicitly
	// (spec.md §5 — the signal is not forwarded transitively).
	Cancel func() bool
}

// Registry assigns each registered Agent a stable integer handle so
// serialized run state can reference agents by name/index rather than by
// direct pointer (spec.md §9's "name → index in a registry").
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Agent
	indexOf map[string]int
	byIndex []*Agent
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Agent), indexOf: make(map[string]int)}
}

// Register adds a to the registry, assigning it the next index. Registering
// the same name twice replaces the prior entry but keeps its original index.
func (r *Registry) Register(a *Agent) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.indexOf[a.Name]; ok {
		r.byIndex[idx] = a
		r.byName[a.Name] = a
		return idx
	}
	idx := len(r.byIndex)
	r.byIndex = append(r.byIndex, a)
	r.indexOf[a.Name] = idx
	r.byName[a.Name] = a
	return idx
}

// Lookup returns the Agent registered under name.
func (r *Registry) Lookup(name string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[name]
	return a, ok
}

// LookupIndex returns the Agent registered at idx.
func (r *Registry) LookupIndex(idx int) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx < 0 || idx >= len(r.byIndex) {
		return nil, false
	}
	return r.byIndex[idx], true
}

// IndexOf returns the stable index assigned to name.
func (r *Registry) IndexOf(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.indexOf[name]
	return idx, ok
}
