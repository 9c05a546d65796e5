package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/mics/internal/runtime/errors"
	loggingpkg "github.com/drblury/mics/internal/runtime/logging"
	"github.com/drblury/mics/internal/runtime/message"
	metadatapkg "github.com/drblury/mics/internal/runtime/metadata"
)

const tracerName = "github.com/drblury/mics"

// DispatchFunc handles one envelope taken from a mailbox.
type DispatchFunc func(ctx context.Context, env message.Envelope) error

// DispatchMiddleware decorates a DispatchFunc.
type DispatchMiddleware func(DispatchFunc) DispatchFunc

// MiddlewareBuilder constructs a middleware for the given microservice. It
// may return a nil middleware to opt out.
type MiddlewareBuilder func(*MicroService) (DispatchMiddleware, error)

// MiddlewareRegistration captures how a middleware should be attached to a microservice.
type MiddlewareRegistration struct {
	Name       string
	Middleware DispatchMiddleware
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares returns the standard middleware chain. Each entry is a
// no-op unless the microservice enables it.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		LogMessagesMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
	}
}

// LogMessagesMiddleware logs each dispatched message at debug level when the
// microservice has message logging enabled. A nil logger uses the service logger.
func LogMessagesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(s *MicroService) (DispatchMiddleware, error) {
			if !s.logMessages {
				return nil, nil
			}
			l := logger
			if l == nil {
				l = s.Logger
			}
			if l == nil {
				return nil, errors.New("log messages middleware requires a logger")
			}
			return logMessagesMiddleware(l), nil
		},
	}
}

// TracerMiddleware wraps every dispatch in an OpenTelemetry span when the
// microservice has a tracer provider.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Builder: func(s *MicroService) (DispatchMiddleware, error) {
			if s.tracerProvider == nil {
				return nil, nil
			}
			return tracerMiddleware(s.name, s.tracerProvider.Tracer(tracerName)), nil
		},
	}
}

// MetricsMiddleware records handler durations when metrics are configured.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(s *MicroService) (DispatchMiddleware, error) {
			if s.metrics == nil {
				return nil, nil
			}
			return func(h DispatchFunc) DispatchFunc {
				return func(ctx context.Context, env message.Envelope) error {
					start := time.Now()
					err := h(ctx, env)
					s.metrics.ObserveHandler(s.name, env.TypeName(), outcome(err), time.Since(start))
					return err
				}
			}, nil
		},
	}
}

// RecovererMiddleware converts panics raised further down the chain into a
// HandlerError. Panics in the handler itself are always converted.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "recoverer",
		Builder: func(s *MicroService) (DispatchMiddleware, error) {
			return func(h DispatchFunc) DispatchFunc {
				return func(ctx context.Context, env message.Envelope) (err error) {
					defer func() {
						if r := recover(); r != nil {
							err = &errspkg.HandlerError{Service: s.name, MessageType: env.TypeName(), Panic: r}
						}
					}()
					return h(ctx, env)
				}
			}, nil
		},
	}
}

func (s *MicroService) buildMiddlewares() error {
	var defaults []MiddlewareRegistration
	if !s.disableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(s.middlewares)+1)
	registrations = append(registrations, defaults...)
	registrations = append(registrations, s.middlewares...)
	if !s.hooks.empty() {
		registrations = append(registrations, HooksMiddleware(s.hooks))
	}

	built := make([]DispatchMiddleware, 0, len(registrations))
	for _, reg := range registrations {
		mw, err := reg.build(s)
		if err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("mics: middleware %s: %w", name, err)
		}
		if mw != nil {
			built = append(built, mw)
		}
	}
	s.chain = built
	return nil
}

func (reg MiddlewareRegistration) build(s *MicroService) (DispatchMiddleware, error) {
	switch {
	case reg.Middleware != nil:
		return reg.Middleware, nil
	case reg.Builder != nil:
		return reg.Builder(s)
	default:
		return nil, errors.New("middleware registration requires Middleware or Builder")
	}
}

// applyMiddlewares wraps h so that the first registered middleware runs outermost.
func (s *MicroService) applyMiddlewares(h DispatchFunc) DispatchFunc {
	for i := len(s.chain) - 1; i >= 0; i-- {
		h = s.chain[i](h)
	}
	return h
}

func logMessagesMiddleware(logger loggingpkg.ServiceLogger) DispatchMiddleware {
	return func(h DispatchFunc) DispatchFunc {
		return func(ctx context.Context, env message.Envelope) error {
			logger.Debug("Processing message", loggingpkg.LogFields{
				"message_type":   env.TypeName(),
				"kind":           env.Kind.String(),
				"correlation_id": env.CorrelationID,
				"payload":        fmt.Sprintf("%+v", env.Payload),
				"metadata":       env.Metadata,
			})
			return h(ctx, env)
		}
	}
}

func tracerMiddleware(service string, tracer trace.Tracer) DispatchMiddleware {
	return func(h DispatchFunc) DispatchFunc {
		return func(ctx context.Context, env message.Envelope) error {
			ctx, span := tracer.Start(ctx, "Dispatch "+env.TypeName(), trace.WithSpanKind(trace.SpanKindConsumer))
			defer span.End()

			span.SetAttributes(
				attribute.String("mics.service", service),
				attribute.String("mics.message.type", env.TypeName()),
				attribute.String("mics.message.kind", env.Kind.String()),
				attribute.String("mics.correlation_id", env.CorrelationID),
				attribute.String("mics.sender", env.Metadata[metadatapkg.KeySender]),
			)

			err := h(ctx, env)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	}
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	var he *errspkg.HandlerError
	if errors.As(err, &he) && he.Panic != nil {
		return "panic"
	}
	return "error"
}
