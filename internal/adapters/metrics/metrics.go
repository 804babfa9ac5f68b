package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. Each instance owns its registry so
// tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	// Patch requests by outcome: changed, noop, rejected, not_found
	PatchOutcomes *prometheus.CounterVec

	AuditRecords prometheus.Counter

	// Outbox deliveries by outcome: sent, failed, dead
	OutboxDispatches *prometheus.CounterVec

	RequestLatency *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PatchOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "incidents_patch_requests_total",
			Help: "Patch requests by outcome",
		}, []string{"outcome"}),

		AuditRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "incidents_audit_records_total",
			Help: "Audit records written",
		}),

		OutboxDispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "incidents_outbox_dispatch_total",
			Help: "Outbox delivery attempts by outcome",
		}, []string{"outcome"}),

		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "incidents_http_request_duration_seconds",
			Help:    "HTTP request duration by route pattern, method and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "method", "status"}),
	}
}

func (m *Metrics) PatchApplied(outcome string) {
	if m != nil {
		m.PatchOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) AuditRecorded() {
	if m != nil {
		m.AuditRecords.Inc()
	}
}

func (m *Metrics) OutboxDispatched(outcome string) {
	if m != nil {
		m.OutboxDispatches.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveRequest(route, method, status string, d time.Duration) {
	if m != nil {
		m.RequestLatency.WithLabelValues(route, method, status).Observe(d.Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
