package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for retrieval-augmented decisions.
type Metrics struct {
	// Retrieval latencies by memory kind
	RetrievalLatency *prometheus.HistogramVec

	// Decision outcomes by mode (score, text) and source (model, fallback)
	DecisionOutcome *prometheus.CounterVec

	Flagged prometheus.Counter

	// Overall decision latency including retrieval and model call
	DecideLatency prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		RetrievalLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bankguard_decision_retrieval_duration_seconds",
			Help:    "Duration of similarity retrieval by memory kind",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"kind"}),

		DecisionOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bankguard_decision_outcomes_total",
			Help: "Total decisions by mode and source",
		}, []string{"mode", "source"}),

		Flagged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bankguard_decision_flagged_total",
			Help: "Scored decisions at or above the flag threshold",
		}),

		DecideLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bankguard_decision_duration_seconds",
			Help:    "Duration of a full decision including retrieval and the model call",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

func (m *Metrics) ObserveRetrievalLatency(kind string, d time.Duration) {
	if m != nil {
		m.RetrievalLatency.WithLabelValues(kind).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementOutcome(mode string, degraded bool) {
	if m == nil {
		return
	}
	source := "model"
	if degraded {
		source = "fallback"
	}
	m.DecisionOutcome.WithLabelValues(mode, source).Inc()
}

func (m *Metrics) IncrementFlagged() {
	if m != nil {
		m.Flagged.Inc()
	}
}

func (m *Metrics) ObserveDecideLatency(d time.Duration) {
	if m != nil {
		m.DecideLatency.Observe(d.Seconds())
	}
}
