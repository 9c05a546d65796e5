package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/drblury/mics/internal/runtime/bus"
	configpkg "github.com/drblury/mics/internal/runtime/config"
	errspkg "github.com/drblury/mics/internal/runtime/errors"
	"github.com/drblury/mics/internal/runtime/lifecycle"
	loggingpkg "github.com/drblury/mics/internal/runtime/logging"
)

// Dependencies holds the optional collaborators of a Runtime. Leave fields
// nil to use the defaults.
type Dependencies struct {
	// Registerer and Gatherer default to the Prometheus default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// TracerProvider is used when tracing is enabled; defaults to the global provider.
	TracerProvider trace.TracerProvider
	// Middlewares are appended after the default chain of every microservice.
	Middlewares     []MiddlewareRegistration
	Hooks           DispatchHooks
	ErrorClassifier ErrorClassifier
}

// Runtime hosts a bus and the microservices attached to it, running each on
// its own goroutine.
type Runtime struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	bus     *bus.Bus
	metrics *bus.Metrics
	deps    Dependencies

	servicesMu sync.RWMutex
	services   []*MicroService

	httpServers   map[int]*chi.Mux
	httpServersMu sync.Mutex
}

// New validates conf, builds the bus and, when enabled, its metrics.
func New(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps Dependencies) (*Runtime, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	c := conf.WithDefaults()
	if err := c.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	log.Info("Creating runtime", loggingpkg.LogFields{"config": c.String()})

	r := &Runtime{
		Conf:   &c,
		Logger: log,
		deps:   deps,
	}

	if c.MetricsEnabled {
		r.metrics = bus.NewMetrics(deps.Registerer, c.MetricsNamespace)
		if err := r.metrics.Register(); err != nil {
			return nil, fmt.Errorf("mics: register metrics: %w", err)
		}
	}
	r.bus = bus.New(bus.Options{Logger: log, Metrics: r.metrics})
	return r, nil
}

// Bus returns the runtime's bus.
func (r *Runtime) Bus() *bus.Bus { return r.bus }

// serviceOptions translates the configuration into microservice options.
// Options passed by the caller are applied after these.
func (r *Runtime) serviceOptions() []Option {
	opts := []Option{
		WithLogger(r.Logger),
		WithLogMessages(r.Conf.LogMessages),
		WithUnregisterOnExit(r.Conf.UnregisterOnExit),
		WithMiddlewares(r.deps.Middlewares...),
		WithHooks(r.deps.Hooks),
		WithErrorClassifier(r.deps.ErrorClassifier),
	}
	if r.Conf.TracingEnabled {
		tp := r.deps.TracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		opts = append(opts, WithTracerProvider(tp))
	}
	return opts
}

// NewMicroService creates a microservice on the runtime's bus and adds it to
// the set started by Run.
func (r *Runtime) NewMicroService(name string, init InitFunc, opts ...Option) (*MicroService, error) {
	s, err := NewMicroService(name, r.bus, init, append(r.serviceOptions(), opts...)...)
	if err != nil {
		return nil, err
	}
	if err := r.Add(s); err != nil {
		return nil, err
	}
	return s, nil
}

// NewTicker adds a ticker driven by Conf.TickInterval and Conf.TickDuration.
// Run holds back its first tick until every other hosted service is running.
func (r *Runtime) NewTicker(stats *lifecycle.Statistics, opts ...Option) (*MicroService, error) {
	s, err := NewTicker(r.bus, stats, r.Conf.TickInterval, r.Conf.TickDuration, append(r.serviceOptions(), opts...)...)
	if err != nil {
		return nil, err
	}
	if err := r.Add(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Add registers s with the bus and includes it in Run. s must have been built
// on the runtime's bus.
func (r *Runtime) Add(s *MicroService) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	if s.bus != r.bus {
		return fmt.Errorf("mics: microservice %s is bound to another bus", s.name)
	}
	if err := r.bus.Register(s); err != nil {
		return err
	}

	r.servicesMu.Lock()
	r.services = append(r.services, s)
	r.servicesMu.Unlock()
	return nil
}

// Services lists the microservices in the order they were added.
func (r *Runtime) Services() []*MicroService {
	r.servicesMu.RLock()
	defer r.servicesMu.RUnlock()
	out := make([]*MicroService, len(r.services))
	copy(out, r.services)
	return out
}

// Run starts the HTTP endpoints, runs every microservice on its own
// goroutine and waits for all of them. A failing microservice does not stop
// the others; when BroadcastCrashes is set its peers receive a
// lifecycle.CrashedBroadcast. The returned error joins every failure.
func (r *Runtime) Run(ctx context.Context) error {
	servers := r.startHTTPServers()
	defer r.shutdownHTTPServers(servers)

	services := r.Services()
	gateDone := startTickersAfterPeers(services)

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, s := range services {
		g.Go(func() error {
			err := s.Run(ctx)
			if err != nil {
				r.onServiceFailed(s, err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return err
		})
	}
	_ = g.Wait()
	<-gateDone

	r.Logger.Info("All microservices stopped", loggingpkg.LogFields{"failures": len(errs)})
	return errors.Join(errs...)
}

// startTickersAfterPeers holds back the pulses of every hosted ticker until
// each other service is running or has stopped, so handlers bound in an
// InitFunc see the first tick and the final TerminatedBroadcast. The returned
// channel closes when the gate goroutine exits.
func startTickersAfterPeers(services []*MicroService) <-chan struct{} {
	gate := make(chan struct{})
	var peers []*MicroService
	for _, s := range services {
		if s.isTicker {
			s.startGate = gate
			continue
		}
		peers = append(peers, s)
	}

	exited := make(chan struct{})
	go func() {
		defer close(exited)
		defer close(gate)
		for _, p := range peers {
			select {
			case <-p.Running():
			case <-p.Done():
			}
		}
	}()
	return exited
}

func (r *Runtime) onServiceFailed(s *MicroService, err error) {
	r.Logger.Error("Microservice stopped with error", err, loggingpkg.LogFields{"service": s.Name()})
	if !r.Conf.BroadcastCrashes || !errspkg.IsHandlerError(err) {
		return
	}
	delivered := s.SendBroadcast(lifecycle.CrashedBroadcast{Service: s.Name(), Reason: err.Error()})
	r.Logger.Info("Crash broadcast sent", loggingpkg.LogFields{
		"service":   s.Name(),
		"delivered": delivered,
	})
}

// RegisterHTTPHandler mounts handler under pattern on the listener for port.
// Listeners start with Run. Mounting the same pattern twice on one port panics.
func (r *Runtime) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	r.httpServersMu.Lock()
	defer r.httpServersMu.Unlock()

	if r.httpServers == nil {
		r.httpServers = make(map[int]*chi.Mux)
	}

	mux, ok := r.httpServers[port]
	if !ok {
		mux = chi.NewRouter()
		r.httpServers[port] = mux
	}

	mux.Mount(pattern, handler)
}

func (r *Runtime) startHTTPServers() []*http.Server {
	if r.Conf.InspectorEnabled {
		r.RegisterHTTPHandler(r.Conf.InspectorPort, "/", r.InspectorHandler())
	}
	if r.Conf.MetricsEnabled && r.Conf.MetricsPort > 0 {
		r.RegisterHTTPHandler(r.Conf.MetricsPort, "/metrics", r.metricsHandler())
	}

	r.httpServersMu.Lock()
	defer r.httpServersMu.Unlock()

	servers := make([]*http.Server, 0, len(r.httpServers))
	for port, mux := range r.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		servers = append(servers, srv)
		r.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				r.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
	}
	r.httpServers = nil
	return servers
}

func (r *Runtime) shutdownHTTPServers(servers []*http.Server) {
	if len(servers) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.Conf.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			r.Logger.Error("Failed to stop HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
		}
	}
}
