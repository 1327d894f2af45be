// Package metrics holds the Prometheus instruments for the data protection service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for the service.
type Metrics struct {
	AnalysesTotal             prometheus.Counter
	PoliciesMatchedTotal      prometheus.Counter
	DecisionsTotal            *prometheus.CounterVec
	BlocksTotal               prometheus.Counter
	AlertsCreatedTotal        prometheus.Counter
	AlertPersistErrors        prometheus.Counter
	AuditWriteErrors          prometheus.Counter
	CollaboratorFailuresTotal *prometheus.CounterVec
	PolicyStoreErrors         prometheus.Counter
	NotificationErrors        prometheus.Counter
	AnalysisDuration          prometheus.Histogram
}

// NewMetrics registers all instruments with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AnalysesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "athier_analyses_total",
			Help: "Total number of analysis requests processed",
		}),
		PoliciesMatchedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "athier_policies_matched_total",
			Help: "Total number of policy matches across all analyses",
		}),
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "athier_decisions_total",
			Help: "Resolved enforcement decisions by action",
		}, []string{"action"}),
		BlocksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "athier_blocks_total",
			Help: "Total number of blocked transfers",
		}),
		AlertsCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "athier_alerts_created_total",
			Help: "Total number of alerts persisted",
		}),
		AlertPersistErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "athier_alert_persist_errors_total",
			Help: "Total number of failed alert writes",
		}),
		AuditWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "athier_audit_write_errors_total",
			Help: "Total number of audit entries dropped after retries",
		}),
		CollaboratorFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "athier_collaborator_failures_total",
			Help: "Failed calls to external collaborators",
		}, []string{"collaborator"}),
		PolicyStoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "athier_policy_store_errors_total",
			Help: "Total number of failed policy snapshot reads",
		}),
		NotificationErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "athier_notification_errors_total",
			Help: "Total number of failed alert notifications and audit exports",
		}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "athier_analysis_duration_seconds",
			Help:    "End to end analysis latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveDecision counts one resolved decision and the policies that matched for it.
func (m *Metrics) ObserveDecision(action string, matched int) {
	m.AnalysesTotal.Inc()
	m.PoliciesMatchedTotal.Add(float64(matched))
	m.DecisionsTotal.WithLabelValues(action).Inc()
}

// IncrementCollaboratorFailure counts a failed blocker or encryptor call.
func (m *Metrics) IncrementCollaboratorFailure(collaborator string) {
	m.CollaboratorFailuresTotal.WithLabelValues(collaborator).Inc()
}
