/*
Package runtime provides the microservice run loop and the host that runs a
set of microservices against one message bus.

# Architecture Overview

A MicroService owns a mailbox on a bus.Bus. Its Run method registers it,
runs the InitFunc once to bind handlers, and then takes envelopes from the
mailbox one at a time, so handlers of one microservice never run
concurrently. Different microservices run on different goroutines.

# Package Structure

## Microservice (microservice.go)

MicroService, its options and its state machine:

	Created -> Initializing -> Running -> Terminated

Terminate is cooperative. It wakes a blocked mailbox wait but never cancels
the context handed to a running handler.

## Handler Registration (registration.go)

SubscribeEvent and SubscribeBroadcast bind typed handlers and join the bus's
round-robin and fanout lists. Binding is only allowed before the run loop
starts.

## Middleware (middleware.go) and Hooks (hooks.go)

Every dispatch runs through a DispatchMiddleware chain. The defaults log
messages, open an OpenTelemetry span and record handler durations, each
enabled by an option. DispatchHooks wrap handler execution with start, done
and error callbacks.

## Statistics (models.go, resources.go)

HandlerStats tracks processed and failed messages, latency percentiles,
throughput, error categories and queueing lag per bound handler.

## Ticker (ticker.go)

NewTicker builds a microservice broadcasting lifecycle.TickBroadcast at a
fixed interval. TerminateOn binds the lifecycle broadcasts that make a
microservice stop with the ticker or after a peer crash.

## Runtime Host (runtime.go, inspector.go)

Runtime builds the bus from a config.Config, runs every microservice on its
own goroutine and joins their errors. It optionally serves a read-only
inspector and the Prometheus endpoint over HTTP.

# Error Handling

A handler error or panic stops its own microservice only; Run returns it as
a *errors.HandlerError. Context cancellation and Terminate make Run return
nil. Unregistering a running microservice makes Run return
errors.ErrUnregistered.

# Sub-packages

  - bus: mailboxes, round-robin routing, broadcast fanout, correlation
  - config: configuration and YAML loading
  - errors: sentinel errors and HandlerError
  - future: single-assignment Future
  - handlers: contexts handed to event and broadcast handlers
  - ids: correlation and instance ids
  - jsoncodec: JSON encoding
  - lifecycle: lifecycle broadcasts and run statistics
  - logging: logger interface and adapters
  - message: event and broadcast taxonomy, envelopes
  - metadata: envelope metadata
*/
package runtime
