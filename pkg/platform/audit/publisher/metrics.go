package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "captable/pkg/platform/audit"
)

// Metrics holds Prometheus metrics for audit publishing.
type Metrics struct {
	EventsEmitted   *prometheus.CounterVec
	PersistFailures *prometheus.CounterVec
	PersistDuration prometheus.Histogram
}

// NewMetrics registers audit metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "captable_audit_events_emitted_total",
			Help: "Total number of audit events persisted",
		}, []string{"action"}),
		PersistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "captable_audit_persist_failures_total",
			Help: "Total number of audit events that failed to persist",
		}, []string{"action"}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "captable_audit_persist_duration_seconds",
			Help:    "Time spent persisting one audit event",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncEventsEmitted(action audit.Action) {
	m.EventsEmitted.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) IncPersistFailures(action audit.Action) {
	m.PersistFailures.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) ObservePersistDuration(seconds float64) {
	m.PersistDuration.Observe(seconds)
}
