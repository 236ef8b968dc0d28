package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
)

const namespace = "foodorder"

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	Requests      *prometheus.CounterVec
	LatencyMS     *prometheus.HistogramVec
	BreakerState  *prometheus.GaugeVec
	OutboxSent    *prometheus.CounterVec
	OutboxFailed  *prometheus.CounterVec
	EventsHandled *prometheus.CounterVec
}

// New labels every collector with service as the subsystem. Dashes are folded
// to underscores to keep metric names valid.
func New(service string) *Metrics {
	service = strings.ReplaceAll(service, "-", "_")
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}, []string{"breaker"}),
		OutboxSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "outbox_dispatched_total",
			Help:      "Outbox events delivered to the broker.",
		}, []string{"type"}),
		OutboxFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "outbox_dispatch_failures_total",
			Help:      "Outbox delivery attempts that failed.",
		}, []string{"type"}),
		EventsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "events_consumed_total",
			Help:      "Broker events consumed, by outcome.",
		}, []string{"topic", "outcome"}),
	}

	m.registry.MustRegister(
		m.Requests, m.LatencyMS, m.BreakerState,
		m.OutboxSent, m.OutboxFailed, m.EventsHandled,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Middleware records request counts and latency labelled by the chi route
// pattern, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// ObserveBreaker matches resilience.StateObserver.
func (m *Metrics) ObserveBreaker(name string, state gobreaker.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) Dispatched(eventType string) {
	m.OutboxSent.WithLabelValues(eventType).Inc()
}

func (m *Metrics) DispatchFailed(eventType string) {
	m.OutboxFailed.WithLabelValues(eventType).Inc()
}

func (m *Metrics) Consumed(topic, outcome string) {
	m.EventsHandled.WithLabelValues(topic, outcome).Inc()
}
