package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected   *prometheus.CounterVec
	StoreFails prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Rejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bankguard_ratelimit_rejected_total",
			Help: "Requests rejected with 429, by route class",
		}, []string{"class"}),
		StoreFails: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bankguard_ratelimit_store_errors_total",
			Help: "Rate limit checks that failed open because the store errored",
		}),
	}
}

func (m *Metrics) IncRejected(class string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(class).Inc()
}

func (m *Metrics) IncStoreFailure() {
	if m == nil {
		return
	}
	m.StoreFails.Inc()
}
