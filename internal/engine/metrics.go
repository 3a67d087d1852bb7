package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the engine's Prometheus instruments. They are registered on
// the Registerer handed to NewMetrics, never on the global registry.
type Metrics struct {
	EventsTotal     *prometheus.CounterVec
	MatchOutcomes   *prometheus.CounterVec
	CommitConflicts *prometheus.CounterVec
	BatchFailures   *prometheus.CounterVec
	RecordsWritten  *prometheus.CounterVec
	EventDuration   *prometheus.HistogramVec
}

// NewMetrics creates the engine metrics on reg. A nil reg yields working but
// unregistered instruments.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bills",
			Subsystem: "engine",
			Name:      "events_total",
			Help:      "Obligation events processed, by kind and result.",
		}, []string{"kind", "result"}),

		MatchOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bills",
			Subsystem: "engine",
			Name:      "match_outcomes_total",
			Help:      "Transaction match decisions, by granularity and outcome.",
		}, []string{"granularity", "outcome"}),

		CommitConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bills",
			Subsystem: "engine",
			Name:      "commit_conflicts_total",
			Help:      "Atomic commits rejected because a record changed underneath.",
		}, []string{"granularity"}),

		BatchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bills",
			Subsystem: "engine",
			Name:      "batch_failures_total",
			Help:      "Granularity batches that failed after retries.",
		}, []string{"granularity"}),

		RecordsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bills",
			Subsystem: "engine",
			Name:      "records_written_total",
			Help:      "Period records written, by granularity.",
		}, []string{"granularity"}),

		EventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bills",
			Subsystem: "engine",
			Name:      "event_duration_seconds",
			Help:      "Time to process one obligation event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}
