package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/message"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/session"
)

func TestMemoryBackendAppendTrimsToMax(t *testing.T) {
	b := session.NewMemoryBackend()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, b.AppendMessages(ctx, "s", []message.Message{message.NewText(message.RoleUser, "x")}, 3))
	}
	msgs, err := b.LoadMessages(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestMemoryBackendLoadIsIndependentCopy(t *testing.T) {
	b := session.NewMemoryBackend()
	ctx := context.Background()
	require.NoError(t, b.AppendMessages(ctx, "s", []message.Message{message.NewText(message.RoleUser, "x")}, 0))

	loaded, err := b.LoadMessages(ctx, "s")
	require.NoError(t, err)
	loaded[0].Text = "mutated"

	again, err := b.LoadMessages(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "x", again[0].Text)
}

func TestMemoryBackendMetadataMerge(t *testing.T) {
	b := session.NewMemoryBackend()
	ctx := context.Background()
	require.NoError(t, b.UpdateMetadata(ctx, "s", session.Metadata{"a": 1}))
	require.NoError(t, b.UpdateMetadata(ctx, "s", session.Metadata{"b": 2}))
	md, err := b.LoadMetadata(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, md["a"])
	assert.Equal(t, 2, md["b"])
}
