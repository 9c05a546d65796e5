package runtime

import (
	"context"

	"github.com/drblury/mics/internal/runtime/bus"
	errspkg "github.com/drblury/mics/internal/runtime/errors"
	handlerpkg "github.com/drblury/mics/internal/runtime/handlers"
	"github.com/drblury/mics/internal/runtime/message"
)

// SubscribeEvent binds handler to events of type E and joins the round-robin
// list for E on the bus. Call it from the InitFunc, or before Run. Binding a
// second handler for the same type replaces the first.
func SubscribeEvent[E message.Event[T], T any](s *MicroService, handler func(handlerpkg.EventContext[E, T]) error) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	if handler == nil {
		return errspkg.ErrHandlerRequired
	}

	t := message.TypeFor[E]()
	return s.bind(t, message.KindEvent, func(ctx context.Context, env message.Envelope) error {
		event, ok := env.Payload.(E)
		if !ok {
			return &UnprocessablePayloadError{MessageType: message.TypeName(t), Payload: env.Payload}
		}
		correlationID := env.CorrelationID
		evtCtx := handlerpkg.NewEventContext[E, T](
			handlerpkg.NewMessageContextBase(ctx, env, s.Logger),
			event,
			func(result T) bool { return bus.Complete(s.bus, correlationID, result) },
		)
		return handler(evtCtx)
	}, func() error {
		return s.bus.SubscribeEvent(t, s)
	})
}

// SubscribeBroadcast binds handler to broadcasts of type B and joins the
// fanout list for B on the bus.
func SubscribeBroadcast[B message.Broadcast](s *MicroService, handler func(handlerpkg.BroadcastContext[B]) error) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	if handler == nil {
		return errspkg.ErrHandlerRequired
	}

	t := message.TypeFor[B]()
	return s.bind(t, message.KindBroadcast, func(ctx context.Context, env message.Envelope) error {
		payload, ok := env.Payload.(B)
		if !ok {
			return &UnprocessablePayloadError{MessageType: message.TypeName(t), Payload: env.Payload}
		}
		return handler(handlerpkg.BroadcastContext[B]{
			MessageContextBase: handlerpkg.NewMessageContextBase(ctx, env, s.Logger),
			Broadcast:          payload,
		})
	}, func() error {
		return s.bus.SubscribeBroadcast(t, s)
	})
}
