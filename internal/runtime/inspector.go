package runtime

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/drblury/mics/internal/runtime/jsoncodec"
)

// ServiceInfo is the inspector view of one microservice.
type ServiceInfo struct {
	Name     string         `json:"name"`
	ID       string         `json:"id"`
	State    string         `json:"state"`
	Handlers []*HandlerInfo `json:"handlers"`
}

// InspectorHandler serves the read-only inspection API:
//
//	GET /api/bus       bus snapshot
//	GET /api/services  microservices and handler statistics
//	GET /metrics       Prometheus metrics, when enabled
//
// Requests are traced when tracing is enabled and rate limited per client IP
// when InspectorRateLimit is set.
func (r *Runtime) InspectorHandler() http.Handler {
	router := chi.NewRouter()

	if limit := r.Conf.InspectorRateLimit; limit > 0 {
		router.Use(httprate.Limit(
			limit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(time.Minute.Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
			}),
		))
	}

	if len(r.Conf.InspectorCORSAllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: r.Conf.InspectorCORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
		}))
	}

	router.Get("/api/bus", r.handleGetBus)
	router.Get("/api/services", r.handleGetServices)
	if r.Conf.MetricsEnabled {
		router.Handle("/metrics", r.metricsHandler())
	}

	if !r.Conf.TracingEnabled {
		return router
	}
	tp := r.deps.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return otelhttp.NewHandler(router, "mics.inspector",
		otelhttp.WithTracerProvider(tp),
		otelhttp.WithFilter(func(req *http.Request) bool { return req.URL.Path != "/metrics" }),
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return "HTTP " + req.Method + " " + req.URL.Path
		}),
	)
}

func (r *Runtime) metricsHandler() http.Handler {
	gatherer := r.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (r *Runtime) handleGetBus(w http.ResponseWriter, _ *http.Request) {
	r.writeJSON(w, r.bus.Snapshot())
}

func (r *Runtime) handleGetServices(w http.ResponseWriter, _ *http.Request) {
	services := r.Services()
	infos := make([]ServiceInfo, 0, len(services))
	for _, s := range services {
		infos = append(infos, ServiceInfo{
			Name:     s.Name(),
			ID:       s.ID(),
			State:    s.State().String(),
			Handlers: s.Handlers(),
		})
	}
	r.writeJSON(w, infos)
}

func (r *Runtime) writeJSON(w http.ResponseWriter, v any) {
	data, err := jsoncodec.Marshal(v)
	if err != nil {
		r.Logger.Error("Failed to encode inspector response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
