package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-wide Prometheus metrics that belong to no feature.
type Metrics struct {
	Backends          *prometheus.GaugeVec
	KnowledgeArticles prometheus.Gauge
}

// New creates and registers the process metrics.
func New() *Metrics {
	return &Metrics{
		Backends: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bankguard_backend_enabled",
			Help: "1 when the named infrastructure backend is configured, 0 when the in-memory fallback is used",
		}, []string{"backend"}),
		KnowledgeArticles: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bankguard_knowledge_articles",
			Help: "Number of articles in the financial knowledge base",
		}),
	}
}

// SetBackend records whether backend is enabled.
func (m *Metrics) SetBackend(backend string, enabled bool) {
	if m == nil {
		return
	}
	v := 0.0
	if enabled {
		v = 1
	}
	m.Backends.WithLabelValues(backend).Set(v)
}

// SetKnowledgeArticles records the knowledge base size.
func (m *Metrics) SetKnowledgeArticles(n int) {
	if m == nil {
		return
	}
	m.KnowledgeArticles.Set(float64(n))
}
