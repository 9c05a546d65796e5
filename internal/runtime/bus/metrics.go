package bus

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes bus activity as Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	mu sync.Mutex

	eventsSent          *prometheus.CounterVec
	eventsUnhandled     *prometheus.CounterVec
	eventsCompleted     *prometheus.CounterVec
	broadcastsSent      *prometheus.CounterVec
	broadcastDeliveries *prometheus.CounterVec
	messagesDropped     *prometheus.CounterVec
	mailboxDepth        *prometheus.GaugeVec
	futuresPending      prometheus.Gauge
	servicesRegistered  prometheus.Gauge
	handlerDuration     *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// DefaultHandlerBuckets are the histogram buckets for handler durations in seconds.
var DefaultHandlerBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// NewMetrics creates the bus collectors under namespace. Call Register before use.
func NewMetrics(registerer prometheus.Registerer, namespace string) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "mics"
	}

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      name,
			Help:      help,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		registerer:          registerer,
		eventsSent:          counter("events_sent_total", "Events routed to a subscriber", "type"),
		eventsUnhandled:     counter("events_unhandled_total", "Events sent while no subscriber existed", "type"),
		eventsCompleted:     counter("events_completed_total", "Events whose future was resolved", "type"),
		broadcastsSent:      counter("broadcasts_sent_total", "Broadcasts sent", "type"),
		broadcastDeliveries: counter("broadcast_deliveries_total", "Mailbox insertions caused by broadcasts", "type"),
		messagesDropped:     counter("messages_dropped_total", "Queued messages discarded by unregistration", "service"),
		mailboxDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "mailbox_depth",
			Help:      "Messages waiting in a mailbox",
		}, []string{"service"}),
		futuresPending:     gauge("futures_pending", "Futures handed out and not yet completed"),
		servicesRegistered: gauge("services_registered", "Mailboxes currently registered"),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "microservice",
			Name:      "handler_duration_seconds",
			Help:      "Time spent in message handlers",
			Buckets:   DefaultHandlerBuckets,
		}, []string{"service", "type", "outcome"}),
	}
}

// Register registers the collectors. Safe to call multiple times; collectors
// already registered under the same name are reused.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	var err error
	if m.eventsSent, err = register(m.registerer, m.eventsSent); err != nil {
		return err
	}
	if m.eventsUnhandled, err = register(m.registerer, m.eventsUnhandled); err != nil {
		return err
	}
	if m.eventsCompleted, err = register(m.registerer, m.eventsCompleted); err != nil {
		return err
	}
	if m.broadcastsSent, err = register(m.registerer, m.broadcastsSent); err != nil {
		return err
	}
	if m.broadcastDeliveries, err = register(m.registerer, m.broadcastDeliveries); err != nil {
		return err
	}
	if m.messagesDropped, err = register(m.registerer, m.messagesDropped); err != nil {
		return err
	}
	if m.mailboxDepth, err = register(m.registerer, m.mailboxDepth); err != nil {
		return err
	}
	if m.futuresPending, err = register(m.registerer, m.futuresPending); err != nil {
		return err
	}
	if m.servicesRegistered, err = register(m.registerer, m.servicesRegistered); err != nil {
		return err
	}
	if m.handlerDuration, err = register(m.registerer, m.handlerDuration); err != nil {
		return err
	}

	m.registered = true
	return nil
}

func register[C prometheus.Collector](r prometheus.Registerer, c C) (C, error) {
	if err := r.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) eventSent(typeName string) {
	if m == nil {
		return
	}
	m.eventsSent.WithLabelValues(typeName).Inc()
}

func (m *Metrics) eventUnhandled(typeName string) {
	if m == nil {
		return
	}
	m.eventsUnhandled.WithLabelValues(typeName).Inc()
}

func (m *Metrics) eventCompleted(typeName string) {
	if m == nil {
		return
	}
	m.eventsCompleted.WithLabelValues(typeName).Inc()
}

func (m *Metrics) broadcastSent(typeName string, deliveries int) {
	if m == nil {
		return
	}
	m.broadcastsSent.WithLabelValues(typeName).Inc()
	m.broadcastDeliveries.WithLabelValues(typeName).Add(float64(deliveries))
}

func (m *Metrics) setDepth(service string, depth int) {
	if m == nil {
		return
	}
	m.mailboxDepth.WithLabelValues(service).Set(float64(depth))
}

func (m *Metrics) dropped(service string, count int) {
	if m == nil {
		return
	}
	m.messagesDropped.WithLabelValues(service).Add(float64(count))
	m.mailboxDepth.DeleteLabelValues(service)
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.futuresPending.Set(float64(n))
}

func (m *Metrics) setRegistered(n int) {
	if m == nil {
		return
	}
	m.servicesRegistered.Set(float64(n))
}

// ObserveHandler records how long a handler took. outcome is "success",
// "error" or "panic".
func (m *Metrics) ObserveHandler(service, typeName, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.handlerDuration.WithLabelValues(service, typeName, outcome).Observe(d.Seconds())
}
