package hooks

import (
	"context"
	"sync"
)

// Handler receives a published Event. Handlers are invoked fire-and-forget:
// an error they return is surfaced to the Bus's sink, never to the run
// (spec.md §6 — "exceptions thrown in them do not abort the run").
type Handler func(ctx context.Context, event Event) error

// SubscriberFunc adapts a bare Handler to the Subscriber interface, matching
// the teacher's adapter-method idiom so callers can subscribe with either a
// struct or a plain closure.
type SubscriberFunc func(ctx context.Context, event Event) error

// HandleEvent implements Subscriber.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error { return f(ctx, event) }

// Subscriber receives published events.
type Subscriber interface {
	HandleEvent(ctx context.Context, event Event) error
}

// ErrorSink receives errors returned by subscribers, standing in for the
// "observability sink" spec.md §6 describes.
type ErrorSink func(event Event, sub Subscriber, err error)

// Bus fans one published Event out to every registered Subscriber. A Bus may
// be shared across runs or scoped to a single run. The runner and the tool
// dispatcher publish only to the Bus installed with runner.WithHooks; a Bus
// attached to an agent with agent.WithHooks is stored on the Agent but
// receives no events from the runner.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	sink        ErrorSink
}

// New builds an empty Bus. sink may be nil, in which case subscriber errors
// are silently discarded.
func New(sink ErrorSink) *Bus {
	return &Bus{subscribers: make(map[EventType][]Subscriber), sink: sink}
}

// Subscribe registers sub to receive events of the given type. Passing the
// zero EventType subscribes to every event type.
func (b *Bus) Subscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
}

// SubscribeFunc is a convenience wrapper around Subscribe for bare handlers.
func (b *Bus) SubscribeFunc(eventType EventType, fn Handler) {
	b.Subscribe(eventType, SubscriberFunc(fn))
}

// Publish fans event out to every subscriber registered for its type plus
// every wildcard ("") subscriber, synchronously and in registration order.
// A subscriber's error is routed to the sink and never propagated to the
// caller: hooks cannot abort a run.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := append(append([]Subscriber(nil), b.subscribers[event.Type()]...), b.subscribers[EventType("")]...)
	sink := b.sink
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil && sink != nil {
			sink(event, sub, err)
		}
	}
}
