package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/agent"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/hooks"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/message"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/telemetry"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/usage"
)

// Call is one tool invocation the model requested during a step.
type Call struct {
	CallID    string
	ToolName  string
	Arguments json.RawMessage
}

// Outcome is the per-call record the dispatcher produces, ordered to match
// the input Call order regardless of completion order (spec.md §4.2, §5).
type Outcome struct {
	CallID     string
	ToolName   string
	Arguments  json.RawMessage
	Result     any
	ResultJSON json.RawMessage
	Err        error
	Duration   time.Duration
}

// ToolResultPart converts an Outcome into the tool-role message part the
// runner appends to the transcript (spec.md §4.4 step 9).
func (o Outcome) ToolResultPart() message.Part {
	if o.Err != nil {
		payload, _ := json.Marshal(map[string]string{"error": o.Err.Error()})
		return message.Part{Type: message.PartToolResult, CallID: o.CallID, Result: payload, IsError: true}
	}
	return message.Part{Type: message.PartToolResult, CallID: o.CallID, Result: o.ResultJSON}
}

// Approval is the tuple spec.md §3 assigns to RunState's pending-approvals
// list: a tool name, its arguments, and whether the call has been granted.
// Matching an incoming Call to a recorded Approval is by ToolName plus exact
// byte-for-byte argument equality.
type Approval struct {
	ToolName  string
	Arguments json.RawMessage
	Approved  bool
}

// PendingApproval is a Call the dispatcher could not execute because its
// approval policy required consent that isn't present in Approvals
// (spec.md §4.2 step 2; §7 "Needs-approval").
type PendingApproval struct {
	Call Call
}

// CallMeta carries the tracing/logging identity for one dispatch round.
type CallMeta struct {
	RunID     string
	AgentName string
	TurnID    string
}

// Dispatcher executes tool calls concurrently against a resolved Set.
type Dispatcher struct {
	Telemetry telemetry.Bundle
	Hooks     *hooks.Bus
}

// New builds a Dispatcher. A zero-value Bundle is normalized to Noop.
func New(bundle telemetry.Bundle, bus *hooks.Bus) *Dispatcher {
	return &Dispatcher{Telemetry: bundle.Normalize(), Hooks: bus}
}

// Dispatch validates, approves and concurrently executes calls against set,
// implementing spec.md §4.2 steps 1-4. tracker is incremented once per call
// regardless of outcome (validation failure, approval pending, success, or
// tool error all count, per spec.md §4.2's "the model is accountable").
//
// Returns outcomes for every call that was actually executed or that failed
// validation (both recorded in Call order), and a list of calls still
// awaiting approval. The caller (the runner) decides whether any pending
// approval should pause the run.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	calls []Call,
	set Set,
	rc *agent.RunContext,
	tracker *usage.Tracker,
	approvals []Approval,
	meta CallMeta,
) ([]Outcome, []PendingApproval, error) {
	return d.dispatch(ctx, calls, set, rc, tracker, approvals, meta)
}

// Redispatch re-executes calls left pending approval by a prior Dispatch
// call, applying the caller's now-recorded approvals (spec.md §6: resume
// "continues at the point before the would-be-suspended tool dispatch").
// It does not increment the usage tracker's tool-call counter: a pending
// call already counted once against it when Dispatch first presented it to
// an approval policy (spec.md §4.2, "the model is accountable" applies at
// request time, not at eventual execution time).
func (d *Dispatcher) Redispatch(
	ctx context.Context,
	calls []Call,
	set Set,
	rc *agent.RunContext,
	approvals []Approval,
	meta CallMeta,
) ([]Outcome, []PendingApproval, error) {
	return d.dispatch(ctx, calls, set, rc, nil, approvals, meta)
}

func (d *Dispatcher) dispatch(
	ctx context.Context,
	calls []Call,
	set Set,
	rc *agent.RunContext,
	tracker *usage.Tracker,
	approvals []Approval,
	meta CallMeta,
) ([]Outcome, []PendingApproval, error) {
	outcomes := make([]Outcome, len(calls))
	present := make([]bool, len(calls))
	var pending []PendingApproval

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		if tracker != nil {
			tracker.IncrementToolCalls(1)
		}

		descriptor, ok := set.Descriptors[call.ToolName]
		if !ok {
			outcomes[i] = Outcome{CallID: call.CallID, ToolName: call.ToolName, Arguments: call.Arguments,
				Err: fmt.Errorf("tool %q is not enabled for this agent", call.ToolName)}
			present[i] = true
			continue
		}

		if err := descriptor.Schema.Validate(call.Arguments); err != nil {
			outcomes[i] = Outcome{CallID: call.CallID, ToolName: call.ToolName, Arguments: call.Arguments, Err: err}
			present[i] = true
			continue
		}

		if descriptor.Approval != nil {
			needsApproval, err := descriptor.Approval(ctx, rc, call.Arguments, call.CallID)
			if err != nil {
				outcomes[i] = Outcome{CallID: call.CallID, ToolName: call.ToolName, Arguments: call.Arguments, Err: err}
				present[i] = true
				continue
			}
			if needsApproval && !isApproved(approvals, call) {
				pending = append(pending, PendingApproval{Call: call})
				continue
			}
		}

		descriptor := descriptor
		g.Go(func() error {
			outcomes[i] = d.execute(gctx, descriptor, call, rc, meta)
			present[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	compact := make([]Outcome, 0, len(outcomes))
	for i, ok := range present {
		if ok {
			compact = append(compact, outcomes[i])
		}
	}
	return compact, pending, nil
}

func isApproved(approvals []Approval, call Call) bool {
	for _, a := range approvals {
		if a.ToolName == call.ToolName && string(a.Arguments) == string(call.Arguments) {
			return a.Approved
		}
	}
	return false
}

func (d *Dispatcher) execute(ctx context.Context, descriptor agent.ToolDescriptor, call Call, rc *agent.RunContext, meta CallMeta) Outcome {
	d.Hooks.Publish(ctx, hooks.NewAgentToolStartEvent(meta.RunID, meta.AgentName, call.ToolName, call.CallID))

	ctx, span := d.Telemetry.Tracer.Start(ctx, "tool.dispatch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("tool.name", call.ToolName),
			attribute.String("tool.call_id", call.CallID),
			attribute.String("run.id", meta.RunID),
			attribute.String("agent.name", meta.AgentName),
			attribute.String("turn.id", meta.TurnID),
		),
	)
	start := time.Now()
	result, err := descriptor.Execute(ctx, call.Arguments, rc)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	d.Hooks.Publish(ctx, hooks.NewAgentToolEndEvent(meta.RunID, meta.AgentName, call.ToolName, call.CallID, duration, err))
	d.Telemetry.Metrics.RecordTimer("tool.dispatch.duration", duration, "tool", call.ToolName)

	out := Outcome{CallID: call.CallID, ToolName: call.ToolName, Arguments: call.Arguments, Duration: duration}
	if err != nil {
		out.Err = err
		return out
	}
	resultJSON, merr := json.Marshal(result)
	if merr != nil {
		out.Err = fmt.Errorf("tool: marshaling result: %w", merr)
		return out
	}
	out.Result = result
	out.ResultJSON = resultJSON
	return out
}
