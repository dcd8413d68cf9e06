package tool_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/agent"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/tool"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/usage"
)

type addArgs struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func addTool(t *testing.T) agent.ToolDescriptor {
	schema, err := agent.FromNativeStruct(&addArgs{})
	require.NoError(t, err)
	return agent.ToolDescriptor{
		Name:   "add",
		Schema: schema,
		Execute: func(_ context.Context, args json.RawMessage, _ *agent.RunContext) (any, error) {
			var in addArgs
			require.NoError(t, json.Unmarshal(args, &in))
			return map[string]float64{"result": in.A + in.B}, nil
		},
	}
}

func buildSet(t *testing.T, descriptors ...agent.ToolDescriptor) tool.Set {
	set := tool.Set{Descriptors: map[string]agent.ToolDescriptor{}}
	for _, d := range descriptors {
		set.Descriptors[d.Name] = d
		set.Order = append(set.Order, d.Name)
	}
	return set
}

func TestDispatchSingleCall(t *testing.T) {
	d := tool.New(telemetryNoop(), nil)
	set := buildSet(t, addTool(t))
	calls := []tool.Call{{CallID: "c1", ToolName: "add", Arguments: json.RawMessage(`{"a":2,"b":3}`)}}

	tracker := usage.New()
	outcomes, pending, err := d.Dispatch(context.Background(), calls, set, &agent.RunContext{}, tracker, nil, tool.CallMeta{RunID: "r1"})
	require.NoError(t, err)
	require.Empty(t, pending)
	require.Len(t, outcomes, 1)
	assert.Nil(t, outcomes[0].Err)
	assert.JSONEq(t, `{"result":5}`, string(outcomes[0].ResultJSON))
	assert.Equal(t, 1, tracker.Snapshot().ToolCalls)
}

func TestDispatchValidationFailureCountsAsCall(t *testing.T) {
	d := tool.New(telemetryNoop(), nil)
	set := buildSet(t, addTool(t))
	calls := []tool.Call{{CallID: "c1", ToolName: "add", Arguments: json.RawMessage(`{"a":"not-a-number"}`)}}

	tracker := usage.New()
	outcomes, _, err := d.Dispatch(context.Background(), calls, set, &agent.RunContext{}, tracker, nil, tool.CallMeta{})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0].Err)
	assert.Equal(t, 1, tracker.Snapshot().ToolCalls)
}

func TestDispatchPreservesOrderDespiteUnequalLatency(t *testing.T) {
	slow := agent.ToolDescriptor{
		Name:   "slow",
		Schema: agent.EmptyObjectSchema(),
		Execute: func(ctx context.Context, _ json.RawMessage, _ *agent.RunContext) (any, error) {
			time.Sleep(30 * time.Millisecond)
			return "slow-done", nil
		},
	}
	fast := agent.ToolDescriptor{
		Name:   "fast",
		Schema: agent.EmptyObjectSchema(),
		Execute: func(ctx context.Context, _ json.RawMessage, _ *agent.RunContext) (any, error) {
			return "fast-done", nil
		},
	}
	d := tool.New(telemetryNoop(), nil)
	set := buildSet(t, slow, fast)
	calls := []tool.Call{
		{CallID: "c1", ToolName: "slow"},
		{CallID: "c2", ToolName: "fast"},
	}

	start := time.Now()
	outcomes, _, err := d.Dispatch(context.Background(), calls, set, &agent.RunContext{}, usage.New(), nil, tool.CallMeta{})
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "c1", outcomes[0].CallID)
	assert.Equal(t, "c2", outcomes[1].CallID)
	assert.Less(t, elapsed, 60*time.Millisecond, "calls should run concurrently, not sequentially")
}

func TestDispatchNeedsApprovalPausesThatCall(t *testing.T) {
	gated := agent.ToolDescriptor{
		Name:   "delete",
		Schema: agent.EmptyObjectSchema(),
		Approval: func(_ context.Context, _ *agent.RunContext, _ json.RawMessage, _ string) (bool, error) {
			return true, nil
		},
		Execute: func(_ context.Context, _ json.RawMessage, _ *agent.RunContext) (any, error) {
			return "deleted", nil
		},
	}
	d := tool.New(telemetryNoop(), nil)
	set := buildSet(t, gated)
	calls := []tool.Call{{CallID: "c1", ToolName: "delete", Arguments: json.RawMessage(`{"path":"/system/x"}`)}}

	outcomes, pending, err := d.Dispatch(context.Background(), calls, set, &agent.RunContext{}, usage.New(), nil, tool.CallMeta{})
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	require.Len(t, pending, 1)
	assert.Equal(t, "delete", pending[0].Call.ToolName)

	approvals := []tool.Approval{{ToolName: "delete", Arguments: calls[0].Arguments, Approved: true}}
	outcomes, pending, err = d.Dispatch(context.Background(), calls, set, &agent.RunContext{}, usage.New(), approvals, tool.CallMeta{})
	require.NoError(t, err)
	assert.Empty(t, pending)
	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0].Err)
}

func TestBuildSetMergesTransferToolsAndPrefersAgentDefined(t *testing.T) {
	research := agent.New("Research", agent.WithTransferDescription("deep dives"))
	coord := agent.New("Coord",
		agent.WithSubAgents(research),
		agent.WithTools(agent.ToolDescriptor{Name: "transfer_to_research", Schema: agent.EmptyObjectSchema()}),
	)
	set, warnings, err := tool.BuildSet(context.Background(), coord, &agent.RunContext{})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, set.Descriptors, "transfer_to_research")
	assert.Empty(t, set.Descriptors["transfer_to_research"].Description)
}
