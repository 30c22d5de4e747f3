package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the compliance gate.
type Metrics struct {
	// Validations by outcome: compliant, violation, no_rules, degraded
	Validations *prometheus.CounterVec

	RuleChanges *prometheus.CounterVec
	ActiveRules prometheus.Histogram
}

// New creates a new Metrics instance with all compliance metrics registered.
func New() *Metrics {
	return &Metrics{
		Validations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bankguard_compliance_validations_total",
			Help: "Total compliance validations by outcome",
		}, []string{"outcome"}),
		RuleChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bankguard_compliance_rule_changes_total",
			Help: "Total compliance rule management operations by kind",
		}, []string{"kind"}),
		ActiveRules: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bankguard_compliance_active_rules",
			Help:    "Number of active rules sent with each validation",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
	}
}

func (m *Metrics) IncrementValidation(outcome string) {
	if m != nil {
		m.Validations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementRuleChange(kind string) {
	if m != nil {
		m.RuleChanges.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ObserveActiveRules(n int) {
	if m != nil {
		m.ActiveRules.Observe(float64(n))
	}
}
