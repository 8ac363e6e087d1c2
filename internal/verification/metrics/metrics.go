package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job results recorded by IncrementJobs.
const (
	ResultSuccess            = "success"
	ResultDefinitiveFailure  = "definitive_failure"
	ResultTransientExhausted = "transient_exhausted"
	ResultRetry              = "retry"
	ResultSkipped            = "skipped"
	ResultInvalid            = "invalid"
	ResultError              = "error"
)

// Metrics holds Prometheus metrics for the verification pipeline.
type Metrics struct {
	Jobs               *prometheus.CounterVec
	LookupDuration     *prometheus.HistogramVec
	SideEffectFailures *prometheus.CounterVec
	Dispatches         *prometheus.CounterVec
	CommitConflicts    prometheus.Counter
	Redispatches       prometheus.Counter
}

// New registers verification metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "captable_verification_jobs_total",
			Help: "Verification job invocations by result",
		}, []string{"result"}),
		LookupDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "captable_registry_lookup_duration_seconds",
			Help:    "Registry lookup latency by result category",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"result"}),
		SideEffectFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "captable_verification_side_effect_failures_total",
			Help: "Side effects that failed after a terminal verification outcome",
		}, []string{"effect"}),
		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "captable_verification_dispatches_total",
			Help: "Verification jobs handed to the queue",
		}, []string{"result"}),
		CommitConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "captable_verification_commit_conflicts_total",
			Help: "Terminal commits rejected by the optimistic version check",
		}),
		Redispatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "captable_verification_redispatches_total",
			Help: "Stale pending verifications handed back to the queue",
		}),
	}
}

func (m *Metrics) IncrementJobs(result string) {
	m.Jobs.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveLookup(result string, seconds float64) {
	m.LookupDuration.WithLabelValues(result).Observe(seconds)
}

func (m *Metrics) IncrementSideEffectFailures(effect string) {
	m.SideEffectFailures.WithLabelValues(effect).Inc()
}

func (m *Metrics) IncrementDispatches(result string) {
	m.Dispatches.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementCommitConflicts() {
	m.CommitConflicts.Inc()
}

func (m *Metrics) IncrementRedispatches() {
	m.Redispatches.Inc()
}
