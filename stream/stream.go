// Package stream implements the two derived event sequences and the
// completion future of spec.md §4.10/§9: a lazy, non-restartable pull-based
// sequence is easier to reason about in Go than the source's async
// iterators, so Stream exposes a channel-backed Next instead.
package stream

import (
	"context"
	"sync"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/hooks"
)

// DeltaEvent is one increment of assistant text produced during a run,
// attributed to the agent that produced it.
type DeltaEvent struct {
	AgentName string
	Text      string
}

// Stream is a lazy, single-consumer, non-restartable sequence of T. Next
// blocks until a value is published, the stream is closed, or ctx is
// cancelled.
type Stream[T any] struct {
	ch     chan T
	cancel func()
}

// Next returns the next value. ok is false once the stream has been closed
// and fully drained; err is non-nil only if ctx was cancelled first.
func (s *Stream[T]) Next(ctx context.Context) (value T, ok bool, err error) {
	select {
	case v, open := <-s.ch:
		if !open {
			var zero T
			return zero, false, nil
		}
		return v, true, nil
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}

// Cancel triggers the underlying run's cancellation signal (spec.md §9:
// "Cancellation on the streams triggers cancellation on the underlying
// run"). It does not itself close the stream; the run's own shutdown does.
func (s *Stream[T]) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Completion is the future resolved with a run's final result, separate
// from the two event streams per spec.md §9.
type Completion[T any] struct {
	mu     sync.Mutex
	done   chan struct{}
	result T
	err    error
}

func newCompletion[T any]() *Completion[T] {
	return &Completion[T]{done: make(chan struct{})}
}

// Wait blocks until the run completes or ctx is cancelled.
func (c *Completion[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.result, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (c *Completion[T]) resolve(result T, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return // already resolved
	default:
		c.result = result
		c.err = err
		close(c.done)
	}
}

// Emitter is the publishing side of a run's streams: a producer calls
// PublishEvent/PublishDelta as the run executes and Complete once when the
// run finishes. Callers consume via Events(), TextDeltas(), and
// Completion(). The runner does not drive an Emitter itself: NewSubscriber
// forwards a hooks.Bus's events into one, while text deltas and the
// Complete call come from whatever code drives the run.
type Emitter[T any] struct {
	events     chan hooks.Event
	deltas     chan DeltaEvent
	completion *Completion[T]
	cancel     func()

	closeOnce sync.Once
}

// NewEmitter constructs an Emitter whose streams, when cancelled by the
// consumer, invoke cancel to stop the underlying run. bufferSize bounds how
// far a slow consumer may lag before PublishEvent/PublishDelta block.
func NewEmitter[T any](cancel func(), bufferSize int) *Emitter[T] {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Emitter[T]{
		events:     make(chan hooks.Event, bufferSize),
		deltas:     make(chan DeltaEvent, bufferSize),
		completion: newCompletion[T](),
		cancel:     cancel,
	}
}

// Events returns the full-event derived stream.
func (e *Emitter[T]) Events() *Stream[hooks.Event] { return &Stream[hooks.Event]{ch: e.events, cancel: e.cancel} }

// TextDeltas returns the text-delta-only derived stream.
func (e *Emitter[T]) TextDeltas() *Stream[DeltaEvent] { return &Stream[DeltaEvent]{ch: e.deltas, cancel: e.cancel} }

// Completion returns the run's completion future.
func (e *Emitter[T]) Completion() *Completion[T] { return e.completion }

// PublishEvent forwards an event to the full-event stream. Publishing after
// Complete is a no-op, since the run has already finished.
func (e *Emitter[T]) PublishEvent(ctx context.Context, evt hooks.Event) {
	select {
	case <-e.completion.done:
		return
	default:
	}
	select {
	case e.events <- evt:
	case <-ctx.Done():
	}
}

// PublishDelta forwards a text delta to the text-only stream.
func (e *Emitter[T]) PublishDelta(ctx context.Context, delta DeltaEvent) {
	select {
	case e.deltas <- delta:
	case <-ctx.Done():
	}
}

// Complete resolves the completion future and closes both derived streams.
// It is safe to call at most once per run; subsequent calls are no-ops.
func (e *Emitter[T]) Complete(result T, err error) {
	e.closeOnce.Do(func() {
		e.completion.resolve(result, err)
		close(e.events)
		close(e.deltas)
	})
}
