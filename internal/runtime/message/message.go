// Package message defines what can travel through the bus.
//
// Two capabilities exist. An Event[T] is a request that yields exactly one
// result of type T and is delivered to a single subscriber. A Broadcast is a
// notification with no result, delivered to every current subscriber. Any
// type declares a capability by embedding EventBase[T] or BroadcastBase:
//
//	type DetectObjects struct {
//		message.EventBase[bool]
//		Tick int
//	}
//
//	type Tick struct {
//		message.BroadcastBase
//		N int
//	}
//
// Routing keys on the dynamic type of the value, so DetectObjects and
// *DetectObjects are distinct message types.
package message

import (
	"reflect"
	"time"

	"github.com/drblury/mics/internal/runtime/metadata"
)

// Message is any value the bus can route.
type Message = any

// AnyEvent is satisfied by every Event regardless of its result type.
type AnyEvent interface {
	isEvent()
}

// Event is a request expecting one result of type T.
type Event[T any] interface {
	AnyEvent
	expects(T)
}

// Broadcast is a fire-and-forget notification.
type Broadcast interface {
	isBroadcast()
}

// EventBase marks the embedding type as an Event[T].
type EventBase[T any] struct{}

func (EventBase[T]) isEvent()  {}
func (EventBase[T]) expects(T) {}

// BroadcastBase marks the embedding type as a Broadcast.
type BroadcastBase struct{}

func (BroadcastBase) isBroadcast() {}

// Kind distinguishes events from broadcasts inside an Envelope.
type Kind int

const (
	KindEvent Kind = iota + 1
	KindBroadcast
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// TypeOf returns the routing key for m.
func TypeOf(m Message) reflect.Type {
	return reflect.TypeOf(m)
}

// TypeFor returns the routing key for messages of type M.
func TypeFor[M any]() reflect.Type {
	return reflect.TypeFor[M]()
}

// TypeName renders a routing key for logs and metric labels.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// Envelope is what a mailbox holds: the message plus routing data.
type Envelope struct {
	// CorrelationID is unique per send. For events it is the key that
	// completes the matching Future.
	CorrelationID string
	Kind          Kind
	Type          reflect.Type
	Payload       Message
	Metadata      metadata.Metadata
	SentAt        time.Time
}

// TypeName is the routing key as a string.
func (e Envelope) TypeName() string {
	return TypeName(e.Type)
}
