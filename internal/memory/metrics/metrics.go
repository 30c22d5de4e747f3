package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for similarity-indexed memory.
type Metrics struct {
	Stored     *prometheus.CounterVec
	Searches   *prometheus.CounterVec
	SearchHits prometheus.Histogram
	Expired    prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Stored: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bankguard_memory_records_stored_total",
			Help: "Memory records written, by kind",
		}, []string{"kind"}),
		Searches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bankguard_memory_searches_total",
			Help: "Similarity searches, by kind",
		}, []string{"kind"}),
		SearchHits: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bankguard_memory_search_hits",
			Help:    "Records returned per similarity search",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		}),
		Expired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bankguard_memory_records_expired_total",
			Help: "Memory records removed after their retention deadline",
		}),
	}
}

func (m *Metrics) IncrementStored(kind string) {
	if m != nil {
		m.Stored.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ObserveSearch(kind string, hits int) {
	if m != nil {
		m.Searches.WithLabelValues(kind).Inc()
		m.SearchHits.Observe(float64(hits))
	}
}

func (m *Metrics) AddExpired(n int) {
	if m != nil && n > 0 {
		m.Expired.Add(float64(n))
	}
}
