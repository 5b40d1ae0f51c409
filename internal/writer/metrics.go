package writer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	KindBatch = "batch"
	KindSave  = "save"
)

type Metrics struct {
	Enqueued        *prometheus.CounterVec
	EnqueueFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Enqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "domain_writer_enqueued_total",
			Help: "Tasks accepted by the queue by kind",
		}, []string{"kind"}),
		EnqueueFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "domain_writer_enqueue_failures_total",
			Help: "Tasks the queue refused",
		}),
	}
}

func (m *Metrics) incEnqueued(kind string) {
	if m == nil {
		return
	}
	m.Enqueued.WithLabelValues(kind).Inc()
}

func (m *Metrics) incFailure() {
	if m == nil {
		return
	}
	m.EnqueueFailures.Inc()
}
