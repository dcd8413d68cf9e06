package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/message"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/session"
)

func TestHybridBackendSyncsSlowStoreEveryNAppends(t *testing.T) {
	fast := session.NewMemoryBackend()
	slow := session.NewMemoryBackend()
	hybrid, err := session.NewHybridBackend(session.HybridOptions{Fast: fast, Slow: slow, SyncEvery: 3})
	require.NoError(t, err)

	ctx := context.Background()
	const sessionID = "hy"

	for i := 0; i < 2; i++ {
		require.NoError(t, hybrid.AppendMessages(ctx, sessionID, []message.Message{
			message.NewText(message.RoleUser, "m"),
		}, 0))
	}
	// Not yet synced: slow store should still be empty.
	slowMsgs, err := slow.LoadMessages(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, slowMsgs)

	require.NoError(t, hybrid.AppendMessages(ctx, sessionID, []message.Message{
		message.NewText(message.RoleUser, "m"),
	}, 0))

	slowMsgs, err = slow.LoadMessages(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, slowMsgs, 3)
}

func TestHybridBackendReadsFallBackToSlowStore(t *testing.T) {
	fast := session.NewMemoryBackend()
	slow := session.NewMemoryBackend()
	hybrid, err := session.NewHybridBackend(session.HybridOptions{Fast: fast, Slow: slow})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, slow.AppendMessages(ctx, "fallback", []message.Message{
		message.NewText(message.RoleUser, "from slow"),
	}, 0))

	msgs, err := hybrid.LoadMessages(ctx, "fallback")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "from slow", msgs[0].ConcatText())
}

func TestHybridBackendReplaceWritesThroughBoth(t *testing.T) {
	fast := session.NewMemoryBackend()
	slow := session.NewMemoryBackend()
	hybrid, err := session.NewHybridBackend(session.HybridOptions{Fast: fast, Slow: slow})
	require.NoError(t, err)

	ctx := context.Background()
	replacement := []message.Message{message.NewText(message.RoleSystem, "summary")}
	require.NoError(t, hybrid.ReplaceMessages(ctx, "replace", replacement))

	fastMsgs, err := fast.LoadMessages(ctx, "replace")
	require.NoError(t, err)
	slowMsgs, err := slow.LoadMessages(ctx, "replace")
	require.NoError(t, err)
	assert.Len(t, fastMsgs, 1)
	assert.Len(t, slowMsgs, 1)
}
