package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bankguard/pkg/platform/circuit"
)

// Metrics holds Prometheus collectors shared by all wrappers of a process.
type Metrics struct {
	Calls     *prometheus.CounterVec
	Fallbacks *prometheus.CounterVec
	State     *prometheus.GaugeVec
}

// NewMetrics registers the resilience collectors. Call once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		Calls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bankguard_upstream_calls_total",
			Help: "Upstream calls through a resilience wrapper by outcome",
		}, []string{"dependency", "outcome"}),
		Fallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bankguard_upstream_fallbacks_total",
			Help: "Fallback results returned instead of an upstream response",
		}, []string{"dependency"}),
		State: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bankguard_circuit_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		}, []string{"dependency"}),
	}
}

func (m *Metrics) incCall(dependency, outcome string) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(dependency, outcome).Inc()
}

func (m *Metrics) incFallback(dependency string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(dependency).Inc()
}

func (m *Metrics) setState(dependency string, state circuit.State) {
	if m == nil {
		return
	}
	m.State.WithLabelValues(dependency).Set(float64(state))
}
