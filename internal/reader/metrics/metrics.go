package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// Metrics holds Prometheus metrics for the query resolution engine.
type Metrics struct {
	Resolutions        *prometheus.CounterVec
	ResolutionDuration *prometheus.HistogramVec
	HistoryFallbacks   prometheus.Counter
	ExecutionFailures  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "domain_reader_resolutions_total",
			Help: "Resolutions by operation and outcome",
		}, []string{"operation", "outcome"}),
		ResolutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "domain_reader_resolution_duration_seconds",
			Help:    "Time spent resolving a request, registry lookup included",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		HistoryFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "domain_reader_history_fallbacks_total",
			Help: "History lookups answered from the live table",
		}),
		ExecutionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "domain_reader_execution_failures_total",
			Help: "Queries that failed in the database",
		}),
	}
}

// The methods below are no-ops on a nil receiver so the engine can run
// without metrics.

func (m *Metrics) ObserveResolution(operation, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(operation, outcome).Inc()
	m.ResolutionDuration.WithLabelValues(operation).Observe(took.Seconds())
}

func (m *Metrics) IncHistoryFallback() {
	if m == nil {
		return
	}
	m.HistoryFallbacks.Inc()
}

func (m *Metrics) IncExecutionFailure() {
	if m == nil {
		return
	}
	m.ExecutionFailures.Inc()
}
