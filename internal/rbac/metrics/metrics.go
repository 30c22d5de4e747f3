package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the permission gate.
type Metrics struct {
	// Permission checks by result: granted, denied, unknown_role, error
	Checks *prometheus.CounterVec

	RoleChanges *prometheus.CounterVec
}

// New creates a new Metrics instance with all RBAC metrics registered.
func New() *Metrics {
	return &Metrics{
		Checks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bankguard_permission_checks_total",
			Help: "Total permission checks by result",
		}, []string{"result"}),
		RoleChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bankguard_role_changes_total",
			Help: "Total role management operations by kind",
		}, []string{"kind"}),
	}
}

// IncrementCheck records a permission check outcome.
func (m *Metrics) IncrementCheck(result string) {
	if m != nil {
		m.Checks.WithLabelValues(result).Inc()
	}
}

// IncrementRoleChange records a create, update or delete.
func (m *Metrics) IncrementRoleChange(kind string) {
	if m != nil {
		m.RoleChanges.WithLabelValues(kind).Inc()
	}
}
