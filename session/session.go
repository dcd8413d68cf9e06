// Package session implements the Session Store of spec.md §4.6: append-only
// conversation storage with a configurable compaction policy, over
// pluggable backends with consistent failure semantics.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/message"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/telemetry"
)

// Metadata is the opaque key-value record a Session carries alongside its
// transcript (spec.md §3/§4.6).
type Metadata map[string]any

// Backend is the raw storage primitive a Session wraps. Implementations
// (in-memory, Redis, Mongo, hybrid) provide their own atomicity for
// AppendMessages and ReplaceMessages; Session itself adds the at-most-once
// retry and the compaction policy on top.
type Backend interface {
	// Kind identifies the storage technology, advertised per spec.md §6.
	Kind() string
	// TTL is the backend's record expiry, or 0 if records do not expire.
	TTL() time.Duration

	LoadMessages(ctx context.Context, sessionID string) ([]message.Message, error)
	// AppendMessages atomically appends msgs and trims the stored list to at
	// most maxMessages, keeping the most recent ones (spec.md §4.6: "a
	// list-push-with-trim pipeline, or an array $push with $slice").
	AppendMessages(ctx context.Context, sessionID string, msgs []message.Message, maxMessages int) error
	// ReplaceMessages atomically overwrites the stored list, used after
	// compaction and after sliding-window fallback truncation.
	ReplaceMessages(ctx context.Context, sessionID string, msgs []message.Message) error
	ClearMessages(ctx context.Context, sessionID string) error

	LoadMetadata(ctx context.Context, sessionID string) (Metadata, error)
	UpdateMetadata(ctx context.Context, sessionID string, patch Metadata) error
}

// Store is the public Session interface of spec.md §4.6/§6.
type Store interface {
	GetHistory(ctx context.Context, sessionID string) ([]message.Message, error)
	AddMessages(ctx context.Context, sessionID string, msgs []message.Message) error
	Clear(ctx context.Context, sessionID string) error
	GetMetadata(ctx context.Context, sessionID string) (Metadata, error)
	UpdateMetadata(ctx context.Context, sessionID string, patch Metadata) error
	Kind() string
	TTL() time.Duration
}

// Session wraps a Backend with the session-level invariants of spec.md §3:
// a max-messages bound and an optional compaction policy.
type Session struct {
	backend     Backend
	maxMessages int
	compaction  CompactionPolicy
	telemetry   telemetry.Bundle

	// writeLimiter bounds the at-most-once retry to a steady rate under
	// load, grounded on the teacher's golang.org/x/time dependency.
	writeLimiter *rate.Limiter

	mu sync.Mutex // serializes writes to the same Session instance (spec.md §5)
}

// Option configures a Session.
type Option func(*Session)

// WithCompaction installs a compaction policy.
func WithCompaction(p CompactionPolicy) Option { return func(s *Session) { s.compaction = p } }

// WithTelemetry installs an observability bundle.
func WithTelemetry(b telemetry.Bundle) Option { return func(s *Session) { s.telemetry = b.Normalize() } }

// New builds a Session over backend with the given max-messages bound.
func New(backend Backend, maxMessages int, opts ...Option) *Session {
	if maxMessages <= 0 {
		maxMessages = 200
	}
	s := &Session{
		backend:      backend,
		maxMessages:  maxMessages,
		telemetry:    telemetry.NoopBundle(),
		writeLimiter: rate.NewLimiter(rate.Limit(50), 10),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Kind() string        { return s.backend.Kind() }
func (s *Session) TTL() time.Duration  { return s.backend.TTL() }

// GetHistory returns the session's stored messages in order.
func (s *Session) GetHistory(ctx context.Context, sessionID string) ([]message.Message, error) {
	return s.backend.LoadMessages(ctx, sessionID)
}

// AddMessages atomically appends msgs, then applies the compaction policy if
// the resulting non-summary message count crosses messageThreshold
// (spec.md §4.6). The append itself is retried at most once on failure.
func (s *Session) AddMessages(ctx context.Context, sessionID string, msgs []message.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, span := s.telemetry.Tracer.Start(ctx, "session.append")
	defer span.End()

	if err := s.retryOnce(ctx, func() error {
		return s.backend.AppendMessages(ctx, sessionID, msgs, s.maxMessages)
	}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: appending messages: %w", err)
	}

	if !s.compaction.Enabled {
		return nil
	}

	current, err := s.backend.LoadMessages(ctx, sessionID)
	if err != nil {
		return nil // best-effort: compaction is skipped, append already succeeded
	}
	if countNonSummary(current) <= s.compaction.MessageThreshold {
		return nil
	}

	compacted, err := s.compaction.Apply(ctx, current)
	if err != nil {
		s.telemetry.Logger.Warn(ctx, "compaction failed, falling back to sliding window", "error", err.Error())
		compacted = slidingWindow(current, s.maxMessages)
	}
	if werr := s.retryOnce(ctx, func() error {
		return s.backend.ReplaceMessages(ctx, sessionID, compacted)
	}); werr != nil {
		return fmt.Errorf("session: storing compacted history: %w", werr)
	}
	return nil
}

// Clear deletes the session's stored transcript.
func (s *Session) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.ClearMessages(ctx, sessionID)
}

// GetMetadata loads the session's opaque metadata record.
func (s *Session) GetMetadata(ctx context.Context, sessionID string) (Metadata, error) {
	return s.backend.LoadMetadata(ctx, sessionID)
}

// UpdateMetadata merges patch into the session's stored metadata, retried at
// most once on failure.
func (s *Session) UpdateMetadata(ctx context.Context, sessionID string, patch Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryOnce(ctx, func() error {
		return s.backend.UpdateMetadata(ctx, sessionID, patch)
	})
}

// retryOnce runs fn, and on failure waits for the write limiter and runs it
// exactly one more time (spec.md §4.6: "retried at most once by the session
// itself; further retries are the caller's responsibility").
func (s *Session) retryOnce(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if werr := s.writeLimiter.Wait(ctx); werr != nil {
		return err
	}
	return fn()
}

func countNonSummary(msgs []message.Message) int {
	n := 0
	for _, m := range msgs {
		if !isSummaryMessage(m) {
			n++
		}
	}
	return n
}

// slidingWindow truncates msgs to its most recent max entries, the fallback
// of spec.md §4.6 ("the session never loses recent messages").
func slidingWindow(msgs []message.Message, maxMessages int) []message.Message {
	if len(msgs) <= maxMessages {
		return msgs
	}
	return append([]message.Message(nil), msgs[len(msgs)-maxMessages:]...)
}
