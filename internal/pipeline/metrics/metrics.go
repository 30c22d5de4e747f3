package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the query pipeline.
type Metrics struct {
	// Terminal outcomes by branch (denied, violation, success, error)
	Outcomes *prometheus.CounterVec

	Duration prometheus.Histogram

	// Invocations whose session was created rather than reused
	SessionsCreated prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bankguard_pipeline_outcomes_total",
			Help: "Query pipeline invocations by terminal branch",
		}, []string{"branch"}),

		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bankguard_pipeline_duration_seconds",
			Help:    "End-to-end duration of query pipeline invocations",
			Buckets: prometheus.DefBuckets,
		}),

		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bankguard_pipeline_sessions_created_total",
			Help: "Sessions created by the query pipeline",
		}),
	}
}

func (m *Metrics) ObserveOutcome(branch string, d time.Duration) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(branch).Inc()
	m.Duration.Observe(d.Seconds())
}

func (m *Metrics) IncrementSessionsCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}
