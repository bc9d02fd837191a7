package telemetry

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus exports metrics on its own registry, served by Handler.
type Prometheus struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	reconciliations *prometheus.CounterVec
	accessEvents    *prometheus.CounterVec
	gatewayFailures *prometheus.CounterVec
}

// NewPrometheus registers the collectors under namespace (lower-cased
// metric prefix, e.g. "coworkgate").
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "coworkgate"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "endpoint", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		reconciliations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Payment reconciliations by ingress source and outcome.",
		}, []string{"source", "outcome"}),
		accessEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_events_total",
			Help:      "Kiosk toggles by action and result.",
		}, []string{"action", "result"}),
		gatewayFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_failures_total",
			Help:      "Failed payment gateway calls by operation.",
		}, []string{"operation"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) RecordRequest(_ context.Context, method, endpoint string, status int, duration time.Duration) {
	p.requests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	p.latency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (p *Prometheus) RecordReconcile(_ context.Context, source, outcome string) {
	p.reconciliations.WithLabelValues(source, outcome).Inc()
}

func (p *Prometheus) RecordAccess(_ context.Context, action, result string) {
	p.accessEvents.WithLabelValues(action, result).Inc()
}

func (p *Prometheus) RecordGatewayFailure(_ context.Context, operation string) {
	p.gatewayFailures.WithLabelValues(operation).Inc()
}

var _ Collector = (*Prometheus)(nil)
