package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/message"
)

// HybridBackend is the hybrid Backend of spec.md §4.6: reads prefer the
// fast key-value store, falling back to the document store on a miss, and
// writes go to both, syncing the full transcript into the document store
// every syncEvery appends rather than on every single one.
type HybridBackend struct {
	fast Backend // e.g. Redis
	slow Backend // e.g. Mongo

	syncEvery int

	mu          sync.Mutex // per-instance counter, not a package global (spec.md §5)
	appendCount map[string]int
}

// HybridOptions configures a HybridBackend.
type HybridOptions struct {
	Fast Backend
	Slow Backend
	// SyncEvery is how many AddMessages calls accumulate between full
	// flushes of the transcript into Slow. Defaults to 1 (sync every call).
	SyncEvery int
}

// NewHybridBackend builds a HybridBackend over a fast and a slow Backend.
func NewHybridBackend(opts HybridOptions) (*HybridBackend, error) {
	if opts.Fast == nil || opts.Slow == nil {
		return nil, fmt.Errorf("session: hybrid backend requires both a fast and a slow backend")
	}
	syncEvery := opts.SyncEvery
	if syncEvery <= 0 {
		syncEvery = 1
	}
	return &HybridBackend{
		fast:        opts.Fast,
		slow:        opts.Slow,
		syncEvery:   syncEvery,
		appendCount: make(map[string]int),
	}, nil
}

func (b *HybridBackend) Kind() string { return "hybrid(" + b.fast.Kind() + "+" + b.slow.Kind() + ")" }

func (b *HybridBackend) TTL() time.Duration {
	if t := b.fast.TTL(); t > 0 {
		return t
	}
	return b.slow.TTL()
}

// LoadMessages reads from the fast store, falling back to the slow store on
// a miss or a fast-store error.
func (b *HybridBackend) LoadMessages(ctx context.Context, sessionID string) ([]message.Message, error) {
	msgs, err := b.fast.LoadMessages(ctx, sessionID)
	if err == nil && len(msgs) > 0 {
		return msgs, nil
	}
	return b.slow.LoadMessages(ctx, sessionID)
}

// AppendMessages writes through to the fast store unconditionally, then
// flushes the full transcript into the slow store every syncEvery calls.
func (b *HybridBackend) AppendMessages(ctx context.Context, sessionID string, msgs []message.Message, maxMessages int) error {
	if err := b.fast.AppendMessages(ctx, sessionID, msgs, maxMessages); err != nil {
		return fmt.Errorf("session: hybrid fast append: %w", err)
	}

	b.mu.Lock()
	b.appendCount[sessionID]++
	due := b.appendCount[sessionID] >= b.syncEvery
	if due {
		b.appendCount[sessionID] = 0
	}
	b.mu.Unlock()

	if !due {
		return nil
	}
	return b.flush(ctx, sessionID, maxMessages)
}

// ReplaceMessages writes through to both stores and resets the sync counter,
// since the transcript is now known to be consistent in both.
func (b *HybridBackend) ReplaceMessages(ctx context.Context, sessionID string, msgs []message.Message) error {
	if err := b.fast.ReplaceMessages(ctx, sessionID, msgs); err != nil {
		return fmt.Errorf("session: hybrid fast replace: %w", err)
	}
	if err := b.slow.ReplaceMessages(ctx, sessionID, msgs); err != nil {
		return fmt.Errorf("session: hybrid slow replace: %w", err)
	}
	b.mu.Lock()
	b.appendCount[sessionID] = 0
	b.mu.Unlock()
	return nil
}

func (b *HybridBackend) ClearMessages(ctx context.Context, sessionID string) error {
	ferr := b.fast.ClearMessages(ctx, sessionID)
	serr := b.slow.ClearMessages(ctx, sessionID)
	b.mu.Lock()
	delete(b.appendCount, sessionID)
	b.mu.Unlock()
	if ferr != nil {
		return fmt.Errorf("session: hybrid fast clear: %w", ferr)
	}
	if serr != nil {
		return fmt.Errorf("session: hybrid slow clear: %w", serr)
	}
	return nil
}

func (b *HybridBackend) LoadMetadata(ctx context.Context, sessionID string) (Metadata, error) {
	md, err := b.fast.LoadMetadata(ctx, sessionID)
	if err == nil && len(md) > 0 {
		return md, nil
	}
	return b.slow.LoadMetadata(ctx, sessionID)
}

func (b *HybridBackend) UpdateMetadata(ctx context.Context, sessionID string, patch Metadata) error {
	if err := b.fast.UpdateMetadata(ctx, sessionID, patch); err != nil {
		return fmt.Errorf("session: hybrid fast update metadata: %w", err)
	}
	if err := b.slow.UpdateMetadata(ctx, sessionID, patch); err != nil {
		return fmt.Errorf("session: hybrid slow update metadata: %w", err)
	}
	return nil
}

// flush pulls the current transcript from the fast store and overwrites the
// slow store with it in full, the "syncing a configurable number of
// messages per flush" behavior of spec.md §4.6.
func (b *HybridBackend) flush(ctx context.Context, sessionID string, maxMessages int) error {
	msgs, err := b.fast.LoadMessages(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session: hybrid flush read: %w", err)
	}
	if maxMessages > 0 && len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}
	if err := b.slow.ReplaceMessages(ctx, sessionID, msgs); err != nil {
		return fmt.Errorf("session: hybrid flush write: %w", err)
	}
	return nil
}
