package schema

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the descriptor cache.
type Metrics struct {
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	CacheErrors  prometheus.Counter
	BreakerState prometheus.Gauge
}

// NewMetrics registers descriptor cache metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "domain_reader_schema_cache_hits_total",
			Help: "Schema descriptors served from the cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "domain_reader_schema_cache_misses_total",
			Help: "Schema descriptor lookups that went to the registry",
		}),
		CacheErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "domain_reader_schema_cache_errors_total",
			Help: "Cache read or write failures (the registry still answers)",
		}),
		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "domain_reader_schema_cache_circuit_open",
			Help: "Cache circuit breaker state (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) IncHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) IncMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) IncError() {
	if m != nil {
		m.CacheErrors.Inc()
	}
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}
