package session

import (
	"context"
	"sync"
	"time"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/message"
)

// MemoryBackend is the in-process Backend (spec.md §4.6's "in-memory"
// implementation). It serializes access per session id with its own mutex,
// independent of Session's write-serialization mutex, so it is safe to use
// directly in tests without going through Session.
type MemoryBackend struct {
	mu       sync.Mutex
	messages map[string][]message.Message
	metadata map[string]Metadata
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		messages: make(map[string][]message.Message),
		metadata: make(map[string]Metadata),
	}
}

func (b *MemoryBackend) Kind() string       { return "memory" }
func (b *MemoryBackend) TTL() time.Duration { return 0 }

func (b *MemoryBackend) LoadMessages(_ context.Context, sessionID string) ([]message.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return message.CloneList(b.messages[sessionID]), nil
}

func (b *MemoryBackend) AppendMessages(_ context.Context, sessionID string, msgs []message.Message, maxMessages int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := append(b.messages[sessionID], message.CloneList(msgs)...)
	if maxMessages > 0 && len(cur) > maxMessages {
		cur = cur[len(cur)-maxMessages:]
	}
	b.messages[sessionID] = cur
	return nil
}

func (b *MemoryBackend) ReplaceMessages(_ context.Context, sessionID string, msgs []message.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[sessionID] = message.CloneList(msgs)
	return nil
}

func (b *MemoryBackend) ClearMessages(_ context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.messages, sessionID)
	return nil
}

func (b *MemoryBackend) LoadMetadata(_ context.Context, sessionID string) (Metadata, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := Metadata{}
	for k, v := range b.metadata[sessionID] {
		out[k] = v
	}
	return out, nil
}

func (b *MemoryBackend) UpdateMetadata(_ context.Context, sessionID string, patch Metadata) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.metadata[sessionID]
	if cur == nil {
		cur = Metadata{}
	}
	for k, v := range patch {
		cur[k] = v
	}
	b.metadata[sessionID] = cur
	return nil
}
