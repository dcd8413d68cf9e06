package runner_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/agent"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/message"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/model"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/runner"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/tool"
)

// scriptedModel replays a fixed sequence of Responses, one per Generate call,
// so end-to-end scenarios can be driven deterministically.
type scriptedModel struct {
	responses []model.Response
	calls     int32
}

func (m *scriptedModel) Generate(_ context.Context, _ model.Request) (model.Response, error) {
	i := atomic.AddInt32(&m.calls, 1) - 1
	if int(i) >= len(m.responses) {
		return model.Response{}, fmt.Errorf("scriptedModel: no response queued for call %d", i)
	}
	return m.responses[i], nil
}

func objectSchema(t *testing.T) agent.InputSchema {
	t.Helper()
	s, err := agent.FromJSONSchema(json.RawMessage(`{"type":"object","additionalProperties":true}`))
	require.NoError(t, err)
	return s
}

func toolArgs(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

// S1: single tool call, then completion.
func TestSingleToolCallCompletesRun(t *testing.T) {
	addTool := agent.ToolDescriptor{
		Name:   "add",
		Schema: objectSchema(t),
		Execute: func(_ context.Context, args json.RawMessage, _ *agent.RunContext) (any, error) {
			var in struct{ A, B float64 }
			require.NoError(t, json.Unmarshal(args, &in))
			return map[string]float64{"result": in.A + in.B}, nil
		},
	}
	m := &scriptedModel{responses: []model.Response{
		{ToolCalls: []model.ToolCallRequest{{CallID: "c1", ToolName: "add", Arguments: toolArgs(t, map[string]int{"A": 2, "B": 3})}}, FinishReason: model.FinishToolCalls},
		{AssistantText: "5", FinishReason: model.FinishStop},
	}}
	mathAgent := agent.New("Math", agent.WithModel(m), agent.WithTools(addTool))
	reg := agent.NewRegistry()
	reg.Register(mathAgent)

	r := runner.New()
	result, err := r.Run(context.Background(), runner.RunInput{
		Agent:    mathAgent,
		Registry: reg,
		Messages: []message.Message{message.NewText(message.RoleUser, "What is 2+3?")},
	})
	require.NoError(t, err)
	require.Nil(t, result.Err)
	assert.Equal(t, "complete", result.Status)
	assert.Equal(t, "5", result.FinalOutput)
	assert.Equal(t, 1, result.Metadata.TotalToolCalls)
	assert.Equal(t, []string{"Math"}, result.Metadata.HandoffChain)
	require.Len(t, result.Steps, 2)
	require.Len(t, result.Steps[0].ToolCalls, 1)
	assert.Equal(t, "add", result.Steps[0].ToolCalls[0].ToolName)
}

// S2: parallel tool dispatch wall-clock bound.
func TestParallelToolDispatchStaysBoundedByTheSlowestCall(t *testing.T) {
	sleepTool := func(name string, d time.Duration) agent.ToolDescriptor {
		return agent.ToolDescriptor{
			Name:   name,
			Schema: objectSchema(t),
			Execute: func(ctx context.Context, _ json.RawMessage, _ *agent.RunContext) (any, error) {
				time.Sleep(d)
				return map[string]string{"ok": name}, nil
			},
		}
	}
	m := &scriptedModel{responses: []model.Response{
		{ToolCalls: []model.ToolCallRequest{
			{CallID: "c1", ToolName: "weather", Arguments: toolArgs(t, map[string]string{"city": "nyc"})},
			{CallID: "c2", ToolName: "time", Arguments: toolArgs(t, map[string]string{"tz": "utc"})},
		}, FinishReason: model.FinishToolCalls},
		{AssistantText: "it's sunny and noon", FinishReason: model.FinishStop},
	}}
	infoAgent := agent.New("Info", agent.WithModel(m), agent.WithTools(
		sleepTool("weather", 80*time.Millisecond),
		sleepTool("time", 40*time.Millisecond),
	))
	reg := agent.NewRegistry()
	reg.Register(infoAgent)

	r := runner.New()
	start := time.Now()
	result, err := r.Run(context.Background(), runner.RunInput{
		Agent:    infoAgent,
		Registry: reg,
		Messages: []message.Message{message.NewText(message.RoleUser, "weather and time?")},
	})
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Equal(t, "complete", result.Status)
	assert.Equal(t, 2, result.Metadata.TotalToolCalls)
	assert.Less(t, elapsed, 150*time.Millisecond, "dispatch should overlap, not serialize, the two sleeps")
}

// S3: transfer resets the callee's message list to just the query plus a
// system note.
func TestTransferResetsMessageListForCallee(t *testing.T) {
	var researchMessages []message.Message
	coordModel := &scriptedModel{responses: []model.Response{
		{ToolCalls: []model.ToolCallRequest{{CallID: "c1", ToolName: "transfer_to_research", Arguments: json.RawMessage(`{}`)}}, FinishReason: model.FinishToolCalls},
	}}
	researchModel := &captureModel{out: model.Response{AssistantText: "the answer is 42", FinishReason: model.FinishStop}, captured: &researchMessages}

	research := agent.New("Research", agent.WithModel(researchModel))
	coord := agent.New("Coord", agent.WithModel(coordModel), agent.WithSubAgents(research))
	reg := agent.NewRegistry()
	reg.Register(coord)
	reg.Register(research)

	r := runner.New()
	result, err := r.Run(context.Background(), runner.RunInput{
		Agent:    coord,
		Registry: reg,
		Messages: []message.Message{message.NewText(message.RoleUser, "what is the meaning of life?")},
	})
	require.NoError(t, err)
	assert.Equal(t, "complete", result.Status)
	assert.Equal(t, []string{"Coord", "Research"}, result.Metadata.HandoffChain)

	require.Len(t, researchMessages, 2)
	assert.Equal(t, message.RoleSystem, researchMessages[0].Role)
	assert.Equal(t, message.RoleUser, researchMessages[1].Role)
	assert.Equal(t, "what is the meaning of life?", researchMessages[1].ConcatText())
}

type captureModel struct {
	out      model.Response
	captured *[]message.Message
}

func (m *captureModel) Generate(_ context.Context, req model.Request) (model.Response, error) {
	*m.captured = req.Messages
	return m.out, nil
}

// S4: a failing tool is reported back to the model as an error, the run
// still completes.
func TestToolFailureIsRecoveredNotFatal(t *testing.T) {
	flaky := agent.ToolDescriptor{
		Name:   "explode",
		Schema: objectSchema(t),
		Execute: func(context.Context, json.RawMessage, *agent.RunContext) (any, error) {
			return nil, fmt.Errorf("boom")
		},
	}
	m := &scriptedModel{responses: []model.Response{
		{ToolCalls: []model.ToolCallRequest{{CallID: "c1", ToolName: "explode", Arguments: json.RawMessage(`{}`)}}, FinishReason: model.FinishToolCalls},
		{AssistantText: "sorry, that failed", FinishReason: model.FinishStop},
	}}
	flakyAgent := agent.New("Flaky", agent.WithModel(m), agent.WithTools(flaky))
	reg := agent.NewRegistry()
	reg.Register(flakyAgent)

	r := runner.New()
	result, err := r.Run(context.Background(), runner.RunInput{
		Agent:    flakyAgent,
		Registry: reg,
		Messages: []message.Message{message.NewText(message.RoleUser, "please explode")},
	})
	require.NoError(t, err)
	assert.Equal(t, "complete", result.Status)
	assert.Equal(t, 1, result.Metadata.TotalToolCalls)
	require.Len(t, result.Steps[0].ToolCalls, 1)
	assert.NotEmpty(t, result.Steps[0].ToolCalls[0].Err)
}

// S6: a tool requiring approval pauses the run; resuming with a grant
// executes it.
func TestPauseForApprovalThenResumeGrants(t *testing.T) {
	executed := false
	deleteTool := agent.ToolDescriptor{
		Name:   "delete",
		Schema: objectSchema(t),
		Approval: func(_ context.Context, _ *agent.RunContext, args json.RawMessage, _ string) (bool, error) {
			var in struct{ Path string }
			_ = json.Unmarshal(args, &in)
			return len(in.Path) >= 8 && in.Path[:8] == "/system/", nil
		},
		Execute: func(context.Context, json.RawMessage, *agent.RunContext) (any, error) {
			executed = true
			return map[string]bool{"deleted": true}, nil
		},
	}
	m := &scriptedModel{responses: []model.Response{
		{ToolCalls: []model.ToolCallRequest{{CallID: "c1", ToolName: "delete", Arguments: toolArgs(t, map[string]string{"Path": "/system/x"})}}, FinishReason: model.FinishToolCalls},
		{AssistantText: "deleted", FinishReason: model.FinishStop},
	}}
	opsAgent := agent.New("Ops", agent.WithModel(m), agent.WithTools(deleteTool))
	reg := agent.NewRegistry()
	reg.Register(opsAgent)

	r := runner.New()
	paused, err := r.Run(context.Background(), runner.RunInput{
		Agent:    opsAgent,
		Registry: reg,
		Messages: []message.Message{message.NewText(message.RoleUser, "clean up /system/x")},
	})
	require.NoError(t, err)
	require.Equal(t, "paused", paused.Status)
	assert.False(t, executed)
	require.Len(t, paused.Metadata.PendingApprovals, 1)
	assert.Equal(t, "delete", paused.Metadata.PendingApprovals[0].ToolName)

	resumed, err := r.Resume(context.Background(), runner.ResumeInput{
		State:    paused.State,
		Registry: reg,
		Approvals: []tool.Approval{
			{ToolName: "delete", Arguments: paused.Metadata.PendingApprovals[0].Arguments, Approved: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "complete", resumed.Status)
	assert.True(t, executed)
}

// Boundary: maxSteps=1 with a tool-requesting model fails on the second turn.
func TestMaxStepsExhaustionFailsOnSecondTurn(t *testing.T) {
	noopTool := agent.ToolDescriptor{
		Name:    "noop",
		Schema:  objectSchema(t),
		Execute: func(context.Context, json.RawMessage, *agent.RunContext) (any, error) { return "ok", nil },
	}
	m := &scriptedModel{responses: []model.Response{
		{ToolCalls: []model.ToolCallRequest{{CallID: "c1", ToolName: "noop", Arguments: json.RawMessage(`{}`)}}, FinishReason: model.FinishToolCalls},
		{AssistantText: "done", FinishReason: model.FinishStop},
	}}
	limited := agent.New("Limited", agent.WithModel(m), agent.WithTools(noopTool), agent.WithMaxSteps(1))
	reg := agent.NewRegistry()
	reg.Register(limited)

	r := runner.New()
	result, err := r.Run(context.Background(), runner.RunInput{
		Agent:    limited,
		Registry: reg,
		Messages: []message.Message{message.NewText(message.RoleUser, "go")},
	})
	require.Error(t, err)
	assert.Equal(t, "failed", result.Status)
	require.Len(t, result.Steps, 1)
}

// Round-trip law: resume(pause(run)) with a deterministic model reaches the
// final output and the token and tool-call totals an uninterrupted run of the
// same script produces (12+13 tokens, one tool call).
func TestResumeAfterPauseMatchesUninterruptedTotals(t *testing.T) {
	grantedTool := agent.ToolDescriptor{
		Name:     "delete",
		Schema:   objectSchema(t),
		Approval: func(context.Context, *agent.RunContext, json.RawMessage, string) (bool, error) { return true, nil },
		Execute:  func(context.Context, json.RawMessage, *agent.RunContext) (any, error) { return map[string]bool{"deleted": true}, nil },
	}
	buildAgent := func() (*agent.Agent, *scriptedModel) {
		m := &scriptedModel{responses: []model.Response{
			{ToolCalls: []model.ToolCallRequest{{CallID: "c1", ToolName: "delete", Arguments: json.RawMessage(`{"Path":"/system/x"}`)}}, FinishReason: model.FinishToolCalls, Usage: model.TokenUsage{PromptTokens: 10, CompletionTokens: 2}},
			{AssistantText: "done", FinishReason: model.FinishStop, Usage: model.TokenUsage{PromptTokens: 12, CompletionTokens: 1}},
		}}
		return agent.New("Ops", agent.WithModel(m), agent.WithTools(grantedTool)), m
	}

	r := runner.New()
	input := []message.Message{message.NewText(message.RoleUser, "clean up")}

	opsA, _ := buildAgent()
	regA := agent.NewRegistry()
	regA.Register(opsA)
	paused, err := r.Run(context.Background(), runner.RunInput{Agent: opsA, Registry: regA, Messages: input})
	require.NoError(t, err)
	require.Equal(t, "paused", paused.Status)

	resumed, err := r.Resume(context.Background(), runner.ResumeInput{
		State:     paused.State,
		Registry:  regA,
		Approvals: []tool.Approval{{ToolName: "delete", Arguments: json.RawMessage(`{"Path":"/system/x"}`), Approved: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, "complete", resumed.Status)
	assert.Equal(t, "done", resumed.FinalOutput)
	assert.Equal(t, 25, resumed.Metadata.TotalTokens)
	assert.Equal(t, 1, resumed.Metadata.TotalToolCalls)
}

// Invariant: every tool-call part has exactly one matching tool-result part
// before the next assistant message.
func TestToolCallsAreAlwaysMatchedByAResultBeforeTheNextAssistantMessage(t *testing.T) {
	addTool := agent.ToolDescriptor{
		Name:    "add",
		Schema:  objectSchema(t),
		Execute: func(context.Context, json.RawMessage, *agent.RunContext) (any, error) { return 5, nil },
	}
	m := &scriptedModel{responses: []model.Response{
		{ToolCalls: []model.ToolCallRequest{{CallID: "c1", ToolName: "add", Arguments: json.RawMessage(`{}`)}}, FinishReason: model.FinishToolCalls},
		{AssistantText: "5", FinishReason: model.FinishStop},
	}}
	mathAgent := agent.New("Math", agent.WithModel(m), agent.WithTools(addTool))
	reg := agent.NewRegistry()
	reg.Register(mathAgent)

	r := runner.New()
	result, err := r.Run(context.Background(), runner.RunInput{
		Agent:    mathAgent,
		Registry: reg,
		Messages: []message.Message{message.NewText(message.RoleUser, "2+3?")},
	})
	require.NoError(t, err)
	assert.Empty(t, message.PendingToolCallIDs(result.Messages))
}
