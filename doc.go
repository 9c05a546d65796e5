// Package mics is an in-process message bus for small cooperating workers.
// Each MicroService owns a mailbox and a handler per message type, and runs
// its handlers one at a time on its own goroutine. Services never call each
// other directly: they talk through a Bus.
//
// # Events and broadcasts
//
// A message type declares what it is by embedding a marker. Types embedding
// EventBase[T] are events: every send goes to exactly one subscriber, chosen
// round-robin, and the sender gets a Future[T] that resolves when the handler
// calls Complete. Types embedding BroadcastBase are broadcasts: every
// subscriber registered at send time gets its own copy.
//
//	type Detect struct {
//		mics.EventBase[bool]
//		Frame int
//	}
//
//	f, ok := mics.SendEvent[bool](bus, Detect{Frame: 7})
//	found, err := f.Wait(ctx)
//
// # Microservices
//
// NewMicroService takes an InitFunc in which handlers are bound with
// SubscribeEvent and SubscribeBroadcast. Run registers the service, runs the
// InitFunc once and then dispatches mailbox messages until Terminate is
// called, the context ends or a handler fails. A failing or panicking handler
// stops only its own service and is reported as a *HandlerError.
//
// # Runtime
//
// Runtime hosts a Bus and a set of microservices, running each on its own
// goroutine and joining their errors. It reads a Config (see LoadConfig) to
// enable Prometheus metrics, OpenTelemetry tracing, message logging and a
// read-only HTTP inspector. NewTicker adds a microservice that broadcasts a
// TickBroadcast per interval and a TerminatedBroadcast once its duration has
// elapsed; services call TerminateOn to stop with it.
//
// # Middleware
//
// Every dispatch runs through a chain of DispatchMiddleware. The default chain
// logs messages, opens a span and records handler durations, each only when
// enabled. DispatchHooks provide OnDispatchStart, OnDispatchDone and
// OnDispatchError callbacks for custom logging and alerting.
package mics
