package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for transaction scoring.
type Metrics struct {
	Processed  *prometheus.CounterVec
	FraudScore prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Processed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bankguard_fraud_transactions_processed_total",
			Help: "Transactions scored, by outcome (clear, flagged, degraded)",
		}, []string{"outcome"}),
		FraudScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bankguard_fraud_score",
			Help:    "Distribution of fraud scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
	}
}

func (m *Metrics) ObserveProcessed(score float64, flagged, degraded bool) {
	if m == nil {
		return
	}
	outcome := "clear"
	switch {
	case degraded:
		outcome = "degraded"
	case flagged:
		outcome = "flagged"
	}
	m.Processed.WithLabelValues(outcome).Inc()
	m.FraudScore.Observe(score)
}
