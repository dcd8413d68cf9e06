package stream_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/hooks"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/stream"
)

type fakeResult struct{ Output string }

func TestEmitterDeliversEventsAndDeltasThenCompletes(t *testing.T) {
	cancelled := false
	emitter := stream.NewEmitter[fakeResult](func() { cancelled = true }, 4)
	ctx := context.Background()

	evt := hooks.NewAgentStartEvent("run-1", "Math")
	emitter.PublishEvent(ctx, evt)
	emitter.PublishDelta(ctx, stream.DeltaEvent{AgentName: "Math", Text: "5"})
	emitter.Complete(fakeResult{Output: "5"}, nil)

	gotEvt, ok, err := emitter.Events().Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, hooks.AgentStart, gotEvt.Type())

	_, ok, err = emitter.Events().Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok) // stream closed after the one buffered event drains

	gotDelta, ok, err := emitter.TextDeltas().Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "5", gotDelta.Text)

	result, err := emitter.Completion().Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5", result.Output)

	emitter.Events().Cancel()
	assert.True(t, cancelled)
}

func TestStreamNextRespectsContextCancellation(t *testing.T) {
	emitter := stream.NewEmitter[fakeResult](func() {}, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok, err := emitter.Events().Next(ctx)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestCompleteIsIdempotent(t *testing.T) {
	emitter := stream.NewEmitter[fakeResult](func() {}, 1)
	emitter.Complete(fakeResult{Output: "first"}, nil)
	assert.NotPanics(t, func() {
		emitter.Complete(fakeResult{Output: "second"}, nil)
	})

	result, err := emitter.Completion().Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", result.Output)
}
