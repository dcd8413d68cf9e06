package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/agent"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/guardrail"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/hooks"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/message"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/model"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/runerr"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/runstate"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/telemetry"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/tool"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/transfer"
)

// Runner owns the tool dispatcher and the observability wiring shared across
// runs. It carries no per-run mutable state: that lives entirely in
// runstate.RunState, which is why Run and Resume can share one internal
// loop.
type Runner struct {
	dispatcher *tool.Dispatcher
	hooks      *hooks.Bus
	telemetry  telemetry.Bundle
}

// Option configures a Runner.
type Option func(*Runner)

// WithHooks installs the per-run hook bus events are published to.
func WithHooks(bus *hooks.Bus) Option { return func(r *Runner) { r.hooks = bus } }

// WithTelemetry installs an observability bundle.
func WithTelemetry(b telemetry.Bundle) Option { return func(r *Runner) { r.telemetry = b.Normalize() } }

// New builds a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{telemetry: telemetry.NoopBundle()}
	for _, opt := range opts {
		opt(r)
	}
	if r.hooks == nil {
		r.hooks = hooks.New(nil)
	}
	r.dispatcher = tool.New(r.telemetry, r.hooks)
	return r
}

// Run starts a fresh run from in (spec.md §4.4 data flow).
func (r *Runner) Run(ctx context.Context, in RunInput) (Result, error) {
	if in.Agent == nil {
		return Result{}, fmt.Errorf("runner: RunInput.Agent is required")
	}
	runID := in.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	state := runstate.New(in.Registry, in.Agent, in.UserContext, in.Messages)
	return r.loop(ctx, state, runID, nil, in.Cancel)
}

// Resume continues a paused run (spec.md §6 "Pause/resume contract"). The
// caller must have marked every entry of in.Approvals granted or denied.
//
// Resume does not simply re-enter the loop at the top: spec.md §6 requires
// it to continue "at the point before the would-be-suspended tool
// dispatch", not by calling the model again. The restored message list's
// trailing tool-call requests are re-dispatched with in.Approvals applied
// first; control reaches the normal turn loop only once every call has
// executed. If any call is still unapproved, the run pauses again.
func (r *Runner) Resume(ctx context.Context, in ResumeInput) (Result, error) {
	state, err := runstate.Restore(in.State, in.Registry)
	if err != nil {
		return Result{}, fmt.Errorf("runner: restoring state: %w", err)
	}
	runID := in.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	if calls := pendingToolCalls(state.Messages); len(calls) > 0 {
		result, resolved, err := r.resumeDispatch(ctx, state, runID, calls, in.Approvals)
		if !resolved {
			return result, err
		}
	}

	return r.loop(ctx, state, runID, nil, in.Cancel)
}

// resumeDispatch re-executes the tool calls a prior run left unanswered,
// advancing state as loop's steps 9, 11 and 12 would have (tool-result
// messages, metrics, transfer, step counters); no StepResult is recorded for
// the re-dispatched calls. resolved is
// false when some call is still unapproved (the run pauses again) or the
// run failed outright; the caller returns result/err as-is in that case.
func (r *Runner) resumeDispatch(ctx context.Context, state *runstate.RunState, runID string, calls []tool.Call, approvals []tool.Approval) (Result, bool, error) {
	current := state.CurrentAgent
	rc := &agent.RunContext{
		UserContext:  state.UserContext,
		CurrentAgent: current,
		Messages:     state.Messages,
		Usage:        state.Usage,
		Cancel:       func() bool { return false },
	}

	set, warnings, err := tool.BuildSet(ctx, current, rc)
	if err != nil {
		result, finalErr := r.finalize(state, nil, runerr.Wrap(runerr.KindModelFailure, "building tool set on resume", err))
		return result, false, finalErr
	}
	for _, w := range warnings {
		r.telemetry.Logger.Warn(ctx, w)
	}

	meta := tool.CallMeta{RunID: runID, AgentName: current.Name, TurnID: fmt.Sprintf("%s-resume-%d", runID, state.Step)}
	outcomes, pending, err := r.dispatcher.Redispatch(ctx, calls, set, rc, approvals, meta)
	if err != nil {
		result, finalErr := r.finalize(state, nil, runerr.Wrap(runerr.KindToolFailure, "tool dispatch on resume", err))
		return result, false, finalErr
	}

	if len(pending) > 0 {
		state.PendingApprovals = pendingApprovalsOf(pending)
		result, _ := r.pause(state, nil, runID, pending)
		return result, false, nil
	}

	for _, o := range outcomes {
		state.Messages = append(state.Messages, message.NewParts(message.RoleTool, o.ToolResultPart()))
	}
	state.PendingApprovals = nil
	metrics := state.MetricsFor(current.Name)
	for _, o := range outcomes {
		metrics.ToolCalls++
		metrics.Duration += o.Duration
	}

	transferred, terr := r.applyTransfer(ctx, state, current, outcomes, runID)
	if terr != nil {
		result, finalErr := r.finalize(state, nil, terr)
		return result, false, finalErr
	}
	if !transferred {
		state.Step++
		state.StepsUnderAgent++
	}
	return Result{}, true, nil
}

// pendingToolCalls returns the tool calls in messages whose call id has no
// matching tool-result part yet, in the order they were originally
// requested (spec.md §6's resume target).
func pendingToolCalls(messages []message.Message) []tool.Call {
	ids := message.PendingToolCallIDs(messages)
	if len(ids) == 0 {
		return nil
	}
	byID := make(map[string]message.Part, len(ids))
	for _, m := range messages {
		for _, p := range m.ToolCalls() {
			byID[p.CallID] = p
		}
	}
	calls := make([]tool.Call, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			calls = append(calls, tool.Call{CallID: p.CallID, ToolName: p.ToolName, Arguments: p.Arguments})
		}
	}
	return calls
}

// loop drives the turn-by-turn state machine of spec.md §4.4 until the run
// completes, fails, or pauses. approvals, when non-nil, are consulted by the
// dispatcher on the loop's first dispatch only; Run and Resume both pass nil
// (Resume applies its approvals in resumeDispatch before entering the loop).
// The process-wide default model is read once, on entry, and used for every
// model call of this run whose agent has no model of its own.
func (r *Runner) loop(ctx context.Context, state *runstate.RunState, runID string, approvals []tool.Approval, cancel *CancelSignal) (Result, error) {
	var steps []StepResult
	firstTurn := state.Step == 0 && len(state.HandoffChain) <= 1
	defaultModel := model.Default()

	for {
		current := state.CurrentAgent

		// Step 1: per-agent turn budget.
		if state.StepsUnderAgent >= effectiveMaxSteps(current) {
			return r.finalize(state, steps,
				runerr.New(runerr.KindBudgetExhausted, fmt.Sprintf("agent %q exceeded its maximum of %d steps", current.Name, effectiveMaxSteps(current))))
		}

		if cancel.Cancelled() {
			return r.pauseOrFail(state, steps, runID)
		}

		r.hooks.Publish(ctx, hooks.NewAgentStartEvent(runID, current.Name))

		rc := &agent.RunContext{
			UserContext:  state.UserContext,
			CurrentAgent: current,
			Messages:     state.Messages,
			Usage:        state.Usage,
			Cancel:       func() bool { return cancel.Cancelled() },
		}

		// Step 2: resolve instructions.
		systemMessage, err := current.ResolveInstructions(ctx, rc)
		if err != nil {
			return r.finalize(state, steps, runerr.Wrap(runerr.KindModelFailure, "resolving instructions", err))
		}

		// Step 3: build tool set.
		set, warnings, err := tool.BuildSet(ctx, current, rc)
		if err != nil {
			return r.finalize(state, steps, runerr.Wrap(runerr.KindModelFailure, "building tool set", err))
		}
		for _, w := range warnings {
			r.telemetry.Logger.Warn(ctx, w)
		}

		// Step 4: input guardrails on turn 1.
		if firstTurn {
			if err := guardrail.New(current.Guardrails...).Run(ctx, guardrail.TypeInput, message.FirstUserText(state.Messages), state.UserContext); err != nil {
				return r.finalize(state, steps, guardrailErr(err))
			}
			firstTurn = false
		}

		// Whole-run token cap, checked before each model call.
		if current.ModelSettings.MaxTokens != nil {
			if snap := state.Usage.Snapshot(); snap.TotalTokens >= *current.ModelSettings.MaxTokens {
				return r.finalize(state, steps,
					runerr.New(runerr.KindBudgetExhausted, fmt.Sprintf("whole-run token cap of %d reached", *current.ModelSettings.MaxTokens)))
			}
		}

		// Step 5: invoke the model.
		req := model.Request{
			SystemMessage: systemMessage,
			Messages:      state.Messages,
			Tools:         toolSpecs(set),
			Settings:      current.ModelSettings.ToModelSettings(),
		}
		m := current.Model
		if m == nil {
			m = defaultModel
		}
		if m == nil {
			return r.finalize(state, steps, runerr.New(runerr.KindModelFailure, "agent has no model and no process default is set"))
		}
		resp, err := m.Generate(ctx, req)
		if err != nil {
			return r.finalize(state, steps, runerr.Wrap(runerr.KindModelFailure, "model call failed", err))
		}

		// Step 6: update usage.
		state.Usage.Add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		metrics := state.MetricsFor(current.Name)
		metrics.Turns++
		metrics.PromptTokens += resp.Usage.PromptTokens
		metrics.CompletionTokens += resp.Usage.CompletionTokens
		metrics.TotalTokens += resp.Usage.PromptTokens + resp.Usage.CompletionTokens

		// Step 7: append the assistant message.
		state.Messages = append(state.Messages, assistantMessage(resp))

		step := StepResult{Step: state.Step, Text: resp.AssistantText, FinishReason: string(resp.FinishReason)}

		// Step 8: completion branch. Zero requested tool calls always ends
		// the turn in completion, regardless of the reported finish reason
		// (spec.md §4.4 step 8).
		if len(resp.ToolCalls) == 0 {
			steps = append(steps, step)
			return r.complete(ctx, state, steps, runID, resp)
		}

		// Step 9: dispatch requested tool calls.
		calls := make([]tool.Call, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			calls[i] = tool.Call{CallID: tc.CallID, ToolName: tc.ToolName, Arguments: tc.Arguments}
		}
		meta := tool.CallMeta{RunID: runID, AgentName: current.Name, TurnID: fmt.Sprintf("%s-%d", runID, state.Step)}
		outcomes, pending, err := r.dispatcher.Dispatch(ctx, calls, set, rc, state.Usage, approvals, meta)
		if err != nil {
			return r.finalize(state, steps, runerr.Wrap(runerr.KindToolFailure, "tool dispatch", err))
		}
		approvals = nil // consumed; a subsequent pause records a fresh pending list

		// Calls the dispatcher actually executed get their tool-result
		// messages and metrics recorded regardless of whether other calls
		// in the same batch are still awaiting approval, so a resumed run
		// never re-executes work this turn already completed.
		for _, o := range outcomes {
			state.Messages = append(state.Messages, message.NewParts(message.RoleTool, o.ToolResultPart()))
		}
		for _, o := range outcomes {
			metrics.ToolCalls++
			metrics.Duration += o.Duration
		}
		step.ToolCalls = stepToolCallsOf(outcomes)

		if len(pending) > 0 {
			state.PendingApprovals = pendingApprovalsOf(pending)
			steps = append(steps, step)
			return r.pause(state, steps, runID, pending)
		}

		// Step 10: record the step.
		steps = append(steps, step)

		// Step 11: transfer detection.
		if transferred, err := r.applyTransfer(ctx, state, current, outcomes, runID); err != nil {
			return r.finalize(state, steps, err)
		} else if transferred {
			r.hooks.Publish(ctx, hooks.NewAgentEndEvent(runID, current.Name, resp.AssistantText, nil))
			continue // transfer is free of turn cost; do not increment Step
		}

		r.hooks.Publish(ctx, hooks.NewAgentEndEvent(runID, current.Name, resp.AssistantText, nil))

		// Step 12: increment and loop.
		state.Step++
		state.StepsUnderAgent++
	}
}

// applyTransfer scans outcomes in order for the first transfer marker
// (spec.md §4.3), and if one resolves to a known sub-agent, performs the
// handoff: appends to the chain, swaps the current agent, and resets the
// message list. Unknown targets are dropped per the non-fatal error kind of
// spec.md §7; the loop continues under the same agent.
func (r *Runner) applyTransfer(ctx context.Context, state *runstate.RunState, current *agent.Agent, outcomes []tool.Outcome, runID string) (bool, error) {
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		sig, ok := transfer.ParseMarker(o.Result)
		if !ok {
			continue
		}
		target, known := transfer.Resolve(current, sig)
		if !known {
			r.telemetry.Logger.Warn(ctx, "transfer to unknown agent dropped", "agent", sig.AgentName, "from", current.Name)
			continue
		}
		state.Messages = transfer.Reset(current.Name, state.Messages, sig)
		state.Transfer(target)
		r.hooks.Publish(ctx, hooks.NewAgentTransferEvent(runID, current.Name, target.Name, sig.Reason))
		return true, nil
	}
	return false, nil
}

// complete runs output guardrails, parses the output schema if one is set,
// and finalizes the result (spec.md §4.4 step 8).
func (r *Runner) complete(ctx context.Context, state *runstate.RunState, steps []StepResult, runID string, resp model.Response) (Result, error) {
	current := state.CurrentAgent
	var finalOutput any = resp.AssistantText
	var schemaErr error

	if current.OutputSchema != nil {
		parsed, err := current.OutputSchema.ParseOutput(resp.AssistantText)
		if err != nil {
			schemaErr = runerr.Wrap(runerr.KindOutputSchemaParse, "output did not parse against schema", err)
		} else {
			finalOutput = parsed
		}
	}
	if schemaErr != nil {
		return r.finalize(state, steps, schemaErr)
	}

	if err := guardrail.New(current.Guardrails...).Run(ctx, guardrail.TypeOutput, resp.AssistantText, state.UserContext); err != nil {
		return r.finalize(state, steps, guardrailErr(err))
	}

	r.hooks.Publish(ctx, hooks.NewAgentEndEvent(runID, current.Name, resp.AssistantText, nil))

	result, _ := r.finalize(state, steps, nil)
	result.Status = "complete"
	result.FinalOutput = finalOutput
	return result, nil
}

// pauseOrFail implements the cancellation branch of spec.md §4.4: a paused
// result if approvals are pending, a failed result otherwise.
func (r *Runner) pauseOrFail(state *runstate.RunState, steps []StepResult, runID string) (Result, error) {
	if len(state.PendingApprovals) > 0 {
		data, err := state.Serialize()
		if err != nil {
			return Result{}, fmt.Errorf("runner: serializing paused state: %w", err)
		}
		result, _ := r.finalize(state, steps, nil)
		result.Status = "paused"
		result.State = data
		return result, nil
	}
	return r.finalize(state, steps, runerr.New(runerr.KindCancelled, "run cancelled"))
}

// pause serializes state and returns a paused Result for the given pending
// approvals (spec.md §6 "Pause/resume contract").
func (r *Runner) pause(state *runstate.RunState, steps []StepResult, runID string, pending []tool.PendingApproval) (Result, error) {
	data, err := state.Serialize()
	if err != nil {
		return Result{}, fmt.Errorf("runner: serializing paused state: %w", err)
	}
	result, _ := r.finalize(state, steps, nil)
	result.Status = "paused"
	result.State = data
	result.Metadata.PendingApprovals = make([]tool.Call, len(pending))
	for i, p := range pending {
		result.Metadata.PendingApprovals[i] = p.Call
	}
	return result, nil
}

// finalize builds the terminal Result shared by the complete/failed/paused
// paths: the full metadata record and the final message/step lists. runErr
// is non-nil only for the failed path.
func (r *Runner) finalize(state *runstate.RunState, steps []StepResult, runErr error) (Result, error) {
	status := "complete"
	if runErr != nil {
		status = "failed"
	}
	snap := state.Usage.Snapshot()
	result := Result{
		Status:      status,
		Messages:    state.Messages,
		Steps:       steps,
		Err:         runErr,
		FinalOutput: lastAssistantText(state.Messages),
		Metadata: Metadata{
			TotalTokens:      snap.TotalTokens,
			PromptTokens:     snap.PromptTokens,
			CompletionTokens: snap.CompletionTokens,
			TotalToolCalls:   snap.ToolCalls,
			HandoffChain:     append([]string(nil), state.HandoffChain...),
			AgentMetrics:     agentMetricsOf(state),
		},
	}
	if len(steps) > 0 {
		result.Metadata.FinishReason = steps[len(steps)-1].FinishReason
	}
	return result, runErr
}

func effectiveMaxSteps(a *agent.Agent) int {
	if a.MaxSteps <= 0 {
		return 10
	}
	return a.MaxSteps
}

func guardrailErr(err error) error {
	var trip *guardrail.TripwireError
	if errors.As(err, &trip) {
		return runerr.Wrap(runerr.KindGuardrailRejected, fmt.Sprintf("guardrail %q rejected", trip.GuardrailName), trip)
	}
	return runerr.Wrap(runerr.KindGuardrailRejected, "guardrail check failed", err)
}

func toolSpecs(set tool.Set) []model.ToolSpec {
	ordered := set.Ordered()
	specs := make([]model.ToolSpec, len(ordered))
	for i, td := range ordered {
		specs[i] = model.ToolSpec{Name: td.Name, Description: td.Description, Schema: td.Schema.JSONSchema()}
	}
	return specs
}

func assistantMessage(resp model.Response) message.Message {
	if len(resp.ToolCalls) == 0 {
		return message.NewText(message.RoleAssistant, resp.AssistantText)
	}
	parts := make([]message.Part, 0, len(resp.ToolCalls)+1)
	if resp.AssistantText != "" {
		parts = append(parts, message.Part{Type: message.PartText, Text: resp.AssistantText})
	}
	for _, tc := range resp.ToolCalls {
		parts = append(parts, message.Part{Type: message.PartToolCall, CallID: tc.CallID, ToolName: tc.ToolName, Arguments: tc.Arguments})
	}
	return message.NewParts(message.RoleAssistant, parts...)
}

func lastAssistantText(msgs []message.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == message.RoleAssistant {
			return msgs[i].ConcatText()
		}
	}
	return ""
}

func stepToolCallsOf(outcomes []tool.Outcome) []StepToolCall {
	out := make([]StepToolCall, len(outcomes))
	for i, o := range outcomes {
		stc := StepToolCall{CallID: o.CallID, ToolName: o.ToolName, Arguments: append([]byte(nil), o.Arguments...), Result: o.Result}
		if o.Err != nil {
			stc.Err = o.Err.Error()
		}
		out[i] = stc
	}
	return out
}

func pendingApprovalsOf(pending []tool.PendingApproval) []runstate.PendingApproval {
	out := make([]runstate.PendingApproval, len(pending))
	for i, p := range pending {
		out[i] = runstate.PendingApproval{
			ToolName:  p.Call.ToolName,
			Arguments: append([]byte(nil), p.Call.Arguments...),
			Approved:  false,
		}
	}
	return out
}

func agentMetricsOf(state *runstate.RunState) []AgentMetric {
	out := make([]AgentMetric, 0, len(state.AgentMetrics))
	for name, m := range state.AgentMetrics {
		out = append(out, AgentMetric{
			AgentName:        name,
			Turns:            m.Turns,
			PromptTokens:     m.PromptTokens,
			CompletionTokens: m.CompletionTokens,
			TotalTokens:      m.TotalTokens,
			ToolCalls:        m.ToolCalls,
			DurationMs:       m.Duration.Milliseconds(),
		})
	}
	return out
}
