package runtime

import (
	"context"
	"time"

	loggingpkg "github.com/drblury/mics/internal/runtime/logging"
	"github.com/drblury/mics/internal/runtime/message"
	metadatapkg "github.com/drblury/mics/internal/runtime/metadata"
)

// DispatchContext provides information about one handler invocation to hooks.
type DispatchContext struct {
	// Service is the name of the microservice handling the message.
	Service string
	// MessageType is the routing key of the message.
	MessageType string
	Kind        message.Kind
	// CorrelationID identifies this send; for events it completes the Future.
	CorrelationID string
	// Sender is the name of the sending microservice, empty for external senders.
	Sender   string
	Metadata metadatapkg.Metadata
	Context  context.Context
	// QueuedFor is how long the message waited in the mailbox.
	QueuedFor time.Duration
	StartedAt time.Time
	// Duration is how long the handler took (only set in OnDispatchDone and OnDispatchError).
	Duration time.Duration
}

// DispatchHooks defines callbacks around handler execution.
// All hooks are optional - nil hooks are simply not called.
type DispatchHooks struct {
	// OnDispatchStart is called before the handler is invoked.
	OnDispatchStart func(ctx DispatchContext)

	// OnDispatchDone is called when the handler returns without error.
	OnDispatchDone func(ctx DispatchContext)

	// OnDispatchError is called when the handler fails or panics. The run loop
	// stops right after.
	OnDispatchError func(ctx DispatchContext, err error)
}

// Merge combines two DispatchHooks, creating a new DispatchHooks that calls both.
// The hooks from 'other' are called after the hooks from 'h'.
func (h DispatchHooks) Merge(other DispatchHooks) DispatchHooks {
	return DispatchHooks{
		OnDispatchStart: chainHooks(h.OnDispatchStart, other.OnDispatchStart),
		OnDispatchDone:  chainHooks(h.OnDispatchDone, other.OnDispatchDone),
		OnDispatchError: chainErrorHooks(h.OnDispatchError, other.OnDispatchError),
	}
}

func (h DispatchHooks) empty() bool {
	return h.OnDispatchStart == nil && h.OnDispatchDone == nil && h.OnDispatchError == nil
}

func chainHooks(a, b func(DispatchContext)) func(DispatchContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(DispatchContext, error)) func(DispatchContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// HooksMiddleware creates a middleware that invokes the provided hooks
// around each dispatch.
func HooksMiddleware(hooks DispatchHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "dispatch_hooks",
		Builder: func(s *MicroService) (DispatchMiddleware, error) {
			return hooksMiddleware(s.name, hooks), nil
		},
	}
}

func hooksMiddleware(service string, hooks DispatchHooks) DispatchMiddleware {
	return func(h DispatchFunc) DispatchFunc {
		return func(ctx context.Context, env message.Envelope) error {
			startTime := time.Now()

			dctx := DispatchContext{
				Service:       service,
				MessageType:   env.TypeName(),
				Kind:          env.Kind,
				CorrelationID: env.CorrelationID,
				Sender:        env.Metadata.Sender(),
				Metadata:      env.Metadata,
				Context:       ctx,
				StartedAt:     startTime,
			}
			if !env.SentAt.IsZero() {
				dctx.QueuedFor = startTime.Sub(env.SentAt)
			}

			if hooks.OnDispatchStart != nil {
				hooks.OnDispatchStart(dctx)
			}

			err := h(ctx, env)
			dctx.Duration = time.Since(startTime)

			if err != nil {
				if hooks.OnDispatchError != nil {
					hooks.OnDispatchError(dctx, err)
				}
			} else if hooks.OnDispatchDone != nil {
				hooks.OnDispatchDone(dctx)
			}

			return err
		}
	}
}

// LoggingHooks returns pre-built hooks that log dispatch lifecycle events.
func LoggingHooks(logger loggingpkg.ServiceLogger) DispatchHooks {
	return DispatchHooks{
		OnDispatchStart: func(ctx DispatchContext) {
			logger.Debug("Dispatch started", loggingpkg.LogFields{
				"service":        ctx.Service,
				"message_type":   ctx.MessageType,
				"correlation_id": ctx.CorrelationID,
				"queued_ms":      ctx.QueuedFor.Milliseconds(),
			})
		},
		OnDispatchDone: func(ctx DispatchContext) {
			logger.Debug("Dispatch completed", loggingpkg.LogFields{
				"service":        ctx.Service,
				"message_type":   ctx.MessageType,
				"correlation_id": ctx.CorrelationID,
				"duration_ms":    ctx.Duration.Milliseconds(),
			})
		},
		OnDispatchError: func(ctx DispatchContext, err error) {
			logger.Error("Dispatch failed", err, loggingpkg.LogFields{
				"service":        ctx.Service,
				"message_type":   ctx.MessageType,
				"correlation_id": ctx.CorrelationID,
				"duration_ms":    ctx.Duration.Milliseconds(),
			})
		},
	}
}

// AlertingHooks returns pre-built hooks that call alertFunc on handler failures.
func AlertingHooks(alertFunc func(ctx DispatchContext, err error)) DispatchHooks {
	return DispatchHooks{
		OnDispatchError: alertFunc,
	}
}
