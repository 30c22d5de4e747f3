package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for conversational sessions.
type Metrics struct {
	Created  prometheus.Counter
	Resolved *prometheus.CounterVec
	Expired  prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Created: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bankguard_sessions_created_total",
			Help: "Total sessions created",
		}),
		Resolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bankguard_session_resolutions_total",
			Help: "Pipeline session resolutions by outcome (reused, created)",
		}, []string{"outcome"}),
		Expired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bankguard_sessions_expired_total",
			Help: "Sessions removed after their TTL, by access or by sweep",
		}),
	}
}

func (m *Metrics) IncrementCreated() {
	if m != nil {
		m.Created.Inc()
	}
}

func (m *Metrics) IncrementResolved(outcome string) {
	if m != nil {
		m.Resolved.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) AddExpired(n int) {
	if m != nil && n > 0 {
		m.Expired.Add(float64(n))
	}
}
