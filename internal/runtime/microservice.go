package runtime

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/mics/internal/runtime/bus"
	errspkg "github.com/drblury/mics/internal/runtime/errors"
	"github.com/drblury/mics/internal/runtime/future"
	"github.com/drblury/mics/internal/runtime/ids"
	loggingpkg "github.com/drblury/mics/internal/runtime/logging"
	"github.com/drblury/mics/internal/runtime/message"
)

// State is the lifecycle phase of a MicroService.
type State int32

const (
	StateCreated State = iota
	StateInitializing
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// InitFunc runs once at the start of Run. It is where a microservice binds
// its handlers with SubscribeEvent and SubscribeBroadcast.
type InitFunc func(s *MicroService) error

// MicroService is a worker with its own mailbox and a handler per message
// type. Handlers of one MicroService never run concurrently.
type MicroService struct {
	name string
	id   string
	bus  *bus.Bus
	init InitFunc

	Logger loggingpkg.ServiceLogger

	metrics          *bus.Metrics
	tracerProvider   trace.TracerProvider
	logMessages      bool
	unregisterOnExit bool
	errorClassifier  ErrorClassifier
	resourceTracker  *resourceTracker

	middlewares               []MiddlewareRegistration
	disableDefaultMiddlewares bool
	hooks                     DispatchHooks
	chain                     []DispatchMiddleware

	state atomic.Int32

	bindingsMu sync.RWMutex
	bindings   map[reflect.Type]*binding
	handlers   []*HandlerInfo

	// startGate, when set, holds back a ticker's pulses until it is closed.
	startGate <-chan struct{}
	isTicker  bool

	stopCtx    context.Context
	stopCancel context.CancelFunc
	running    chan struct{}
	done       chan struct{}
}

type binding struct {
	info     *HandlerInfo
	handle   DispatchFunc
	dispatch DispatchFunc
}

// Option configures a MicroService.
type Option func(*MicroService)

// WithLogger sets the logger. Fields identifying the service are added.
func WithLogger(log loggingpkg.ServiceLogger) Option {
	return func(s *MicroService) {
		if log != nil {
			s.Logger = log
		}
	}
}

// WithMiddlewares appends middlewares after the default chain.
func WithMiddlewares(regs ...MiddlewareRegistration) Option {
	return func(s *MicroService) {
		s.middlewares = append(s.middlewares, regs...)
	}
}

// WithoutDefaultMiddlewares skips the default middleware chain.
func WithoutDefaultMiddlewares() Option {
	return func(s *MicroService) {
		s.disableDefaultMiddlewares = true
	}
}

// WithHooks registers dispatch hooks. Repeated calls merge.
func WithHooks(h DispatchHooks) Option {
	return func(s *MicroService) {
		s.hooks = s.hooks.Merge(h)
	}
}

// WithUnregisterOnExit makes Run unregister the service from the bus when it returns.
func WithUnregisterOnExit(enabled bool) Option {
	return func(s *MicroService) {
		s.unregisterOnExit = enabled
	}
}

// WithTracerProvider enables a span per dispatched message.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *MicroService) {
		s.tracerProvider = tp
	}
}

// WithMetrics overrides the collectors used for handler durations. By default
// the bus's collectors are used.
func WithMetrics(m *bus.Metrics) Option {
	return func(s *MicroService) {
		s.metrics = m
	}
}

// WithLogMessages logs every dispatched message at debug level.
func WithLogMessages(enabled bool) Option {
	return func(s *MicroService) {
		s.logMessages = enabled
	}
}

// WithErrorClassifier sets how handler errors are bucketed in HandlerStats.
func WithErrorClassifier(c ErrorClassifier) Option {
	return func(s *MicroService) {
		if c != nil {
			s.errorClassifier = c
		}
	}
}

// NewMicroService constructs a MicroService bound to b. init may be nil.
// The service is not registered with the bus until Run, or until the first
// subscription, whichever happens first.
func NewMicroService(name string, b *bus.Bus, init InitFunc, opts ...Option) (*MicroService, error) {
	if b == nil {
		return nil, errspkg.ErrBusRequired
	}

	s := &MicroService{
		name:            name,
		id:              ids.NewInstanceID(),
		bus:             b,
		init:            init,
		Logger:          loggingpkg.NopLogger(),
		metrics:         b.Metrics(),
		errorClassifier: defaultErrorClassifier,
		resourceTracker: newResourceTracker(),
		bindings:        make(map[reflect.Type]*binding),
		running:         make(chan struct{}),
		done:            make(chan struct{}),
	}
	s.stopCtx, s.stopCancel = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(s)
	}
	s.Logger = s.Logger.With(loggingpkg.LogFields{
		"service":    s.name,
		"service_id": s.id,
	})

	if err := s.buildMiddlewares(); err != nil {
		return nil, err
	}
	return s, nil
}

// Name is the diagnostic name. It plays no part in routing.
func (s *MicroService) Name() string { return s.name }

// ID is unique per instance.
func (s *MicroService) ID() string { return s.id }

// Bus returns the bus the service is bound to.
func (s *MicroService) Bus() *bus.Bus { return s.bus }

func (s *MicroService) State() State { return State(s.state.Load()) }

// Running is closed once the InitFunc has returned and every binding is live.
// It is never closed when initialisation fails; wait on Done as well.
func (s *MicroService) Running() <-chan struct{} { return s.running }

// Done is closed when Run returns.
func (s *MicroService) Done() <-chan struct{} { return s.done }

// Handlers lists the bound handlers with their statistics.
func (s *MicroService) Handlers() []*HandlerInfo {
	s.bindingsMu.RLock()
	defer s.bindingsMu.RUnlock()
	out := make([]*HandlerInfo, len(s.handlers))
	copy(out, s.handlers)
	return out
}

// Terminate asks the run loop to stop. A handler already running finishes
// first; its context is not cancelled. Calling Terminate before Run makes Run
// return right after initialisation.
func (s *MicroService) Terminate() {
	s.stopCancel()
}

func (s *MicroService) terminating() bool {
	return s.stopCtx.Err() != nil
}

// Run registers the service, runs its InitFunc once and then dispatches
// mailbox messages until Terminate is called, ctx ends, the service is
// unregistered or a handler fails. A handler failure is returned as a
// *errors.HandlerError; the other outcomes, except unregistration, return nil.
func (s *MicroService) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateInitializing)) {
		return errspkg.ErrAlreadyStarted
	}
	defer close(s.done)
	defer func() {
		s.state.Store(int32(StateTerminated))
		if s.unregisterOnExit {
			s.bus.Unregister(s)
		}
		s.Logger.Info("Microservice terminated", nil)
	}()

	if err := s.bus.Register(s); err != nil {
		return err
	}
	s.Logger.Info("Initializing microservice", nil)
	if s.init != nil {
		if err := s.init(s); err != nil {
			return fmt.Errorf("mics: initialize %s: %w", s.name, err)
		}
	}
	s.startRunning()
	s.Logger.Info("Microservice running", loggingpkg.LogFields{"handlers": len(s.Handlers())})

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.stopCtx, cancel)
	defer stop()

	for !s.terminating() && ctx.Err() == nil {
		env, err := s.bus.AwaitMessage(waitCtx, s)
		if err != nil {
			switch {
			case s.terminating():
				return nil
			case ctx.Err() != nil:
				s.Logger.Debug("Context done, leaving run loop", loggingpkg.LogFields{"reason": ctx.Err().Error()})
				return nil
			default:
				return err
			}
		}

		if err := s.dispatch(ctx, env); err != nil {
			s.Logger.Error("Handler failed, stopping microservice", err, loggingpkg.LogFields{
				"message_type":   env.TypeName(),
				"correlation_id": env.CorrelationID,
			})
			return err
		}
	}
	return nil
}

func (s *MicroService) lookup(t reflect.Type) *binding {
	s.bindingsMu.RLock()
	defer s.bindingsMu.RUnlock()
	return s.bindings[t]
}

// dispatch runs the handler bound to env's type. Panics anywhere in the
// middleware chain become a HandlerError.
func (s *MicroService) dispatch(ctx context.Context, env message.Envelope) (err error) {
	b := s.lookup(env.Type)
	if b == nil {
		s.Logger.Debug("No handler bound, skipping message", loggingpkg.LogFields{
			"message_type":   env.TypeName(),
			"correlation_id": env.CorrelationID,
		})
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = &errspkg.HandlerError{Service: s.name, MessageType: env.TypeName(), Panic: r}
		}
	}()

	if err := b.dispatch(ctx, env); err != nil {
		var he *errspkg.HandlerError
		if errors.As(err, &he) {
			return err
		}
		return &errspkg.HandlerError{Service: s.name, MessageType: env.TypeName(), Err: err}
	}
	return nil
}

// bind installs handle for t and subscribes the service on the bus. The state
// is checked under bindingsMu so no binding slips in after startRunning.
func (s *MicroService) bind(t reflect.Type, kind message.Kind, handle DispatchFunc, subscribe func() error) error {
	s.bindingsMu.Lock()
	defer s.bindingsMu.Unlock()

	switch s.State() {
	case StateCreated, StateInitializing:
	default:
		return errspkg.ErrNotInitializing
	}

	if err := subscribe(); err != nil {
		return err
	}

	if existing, ok := s.bindings[t]; ok {
		existing.handle = s.guard(existing.info.Stats, handle)
		s.Logger.Debug("Handler replaced", loggingpkg.LogFields{"message_type": message.TypeName(t)})
		return nil
	}

	info := &HandlerInfo{
		Name:  message.TypeName(t),
		Kind:  kind.String(),
		Stats: newHandlerStats(s.resourceTracker),
	}
	s.bindings[t] = &binding{info: info, handle: s.guard(info.Stats, handle)}
	s.handlers = append(s.handlers, info)
	return nil
}

// guard records handler statistics and turns a panic in the handler itself
// into a HandlerError so the middleware chain observes it as a failure.
func (s *MicroService) guard(stats *HandlerStats, handle DispatchFunc) DispatchFunc {
	return wrapHandlerWithStats(func(ctx context.Context, env message.Envelope) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &errspkg.HandlerError{Service: s.name, MessageType: env.TypeName(), Panic: r}
			}
		}()
		return handle(ctx, env)
	}, stats, s.errorClassifier)
}

// startRunning wraps every binding in the middleware chain and moves to
// StateRunning in one critical section.
func (s *MicroService) startRunning() {
	s.bindingsMu.Lock()
	for _, b := range s.bindings {
		b.dispatch = s.applyMiddlewares(b.handle)
	}
	s.state.Store(int32(StateRunning))
	s.bindingsMu.Unlock()
	close(s.running)
}

// SendEvent sends e on the service's bus, stamped with the service as sender.
func SendEvent[T any](s *MicroService, e message.Event[T], opts ...bus.SendOption) (*future.Future[T], bool) {
	opts = append([]bus.SendOption{bus.WithSender(s.name)}, opts...)
	return bus.SendEvent[T](s.bus, e, opts...)
}

// SendBroadcast broadcasts m on the service's bus, stamped with the service as sender.
func (s *MicroService) SendBroadcast(m message.Broadcast, opts ...bus.SendOption) int {
	opts = append([]bus.SendOption{bus.WithSender(s.name)}, opts...)
	return s.bus.SendBroadcast(m, opts...)
}
