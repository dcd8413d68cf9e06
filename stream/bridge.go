package stream

import (
	"context"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/hooks"
)

// NewSubscriber returns a hooks.Subscriber that forwards every event it
// receives to emitter's full-event stream, the composition analogue of
// bridging lifecycle events to a client-facing sink. Filtering which event
// types matter to a particular client is left to the consumer reading the
// stream.
func NewSubscriber[T any](emitter *Emitter[T]) hooks.Subscriber {
	return hooks.SubscriberFunc(func(ctx context.Context, event hooks.Event) error {
		emitter.PublishEvent(ctx, event)
		return nil
	})
}
