package handlers

import (
	"context"

	loggingpkg "github.com/drblury/mics/internal/runtime/logging"
	"github.com/drblury/mics/internal/runtime/message"
	metadatapkg "github.com/drblury/mics/internal/runtime/metadata"
)

// MessageContextBase provides common functionality for all message context types.
// It holds the request context, metadata and logger shared by event and
// broadcast handlers.
type MessageContextBase struct {
	Context  context.Context
	Metadata metadatapkg.Metadata
	Logger   loggingpkg.ServiceLogger
}

// NewMessageContextBase builds the shared context for env. The logger is
// scoped with the message type and correlation id.
func NewMessageContextBase(ctx context.Context, env message.Envelope, logger loggingpkg.ServiceLogger) MessageContextBase {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = loggingpkg.NopLogger()
	}
	return MessageContextBase{
		Context:  ctx,
		Metadata: env.Metadata,
		Logger: logger.With(loggingpkg.LogFields{
			"message_type":   env.TypeName(),
			"correlation_id": env.CorrelationID,
		}),
	}
}

// CloneMetadata returns a copy of the current metadata map so handlers can safely
// mutate headers for outgoing messages without touching the original map.
func (b MessageContextBase) CloneMetadata() metadatapkg.Metadata {
	return b.Metadata.Clone()
}

// Get retrieves a metadata value by key.
func (b MessageContextBase) Get(key string) string {
	return b.Metadata[key]
}

// CorrelationID returns the correlation ID from metadata, if present.
func (b MessageContextBase) CorrelationID() string {
	return b.Metadata[metadatapkg.KeyCorrelationID]
}

// Sender returns the name of the microservice that sent the message, if known.
func (b MessageContextBase) Sender() string {
	return b.Metadata.Sender()
}

// EventContext is handed to event handlers. Complete resolves the sender's
// Future; only the first call has an effect.
type EventContext[E message.Event[T], T any] struct {
	MessageContextBase
	Event E

	complete func(T) bool
}

// NewEventContext wires complete as the resolver for the event's Future.
func NewEventContext[E message.Event[T], T any](base MessageContextBase, event E, complete func(T) bool) EventContext[E, T] {
	return EventContext[E, T]{MessageContextBase: base, Event: event, complete: complete}
}

// Complete delivers result to whoever holds the event's Future. It reports
// false when the Future was already completed.
func (c EventContext[E, T]) Complete(result T) bool {
	if c.complete == nil {
		return false
	}
	return c.complete(result)
}

// BroadcastContext is handed to broadcast handlers.
type BroadcastContext[B message.Broadcast] struct {
	MessageContextBase
	Broadcast B
}
