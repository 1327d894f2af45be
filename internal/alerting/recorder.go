// Package alerting persists alerts for policy-triggering analyses, writes the
// audit trail and fans both out to notification and export sinks.
package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/metrics"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

// MultiPolicyTitle is the alert title used when more than one policy matched.
const MultiPolicyTitle = "Sensitive Data Detected"

// DefaultAuditTimeout bounds one LogAudit call. The analysis response waits
// for the audit write, so a hung audit store costs at most this much latency.
const DefaultAuditTimeout = 2 * time.Second

// AlertStore persists alerts.
type AlertStore interface {
	Create(ctx context.Context, alert *models.Alert) error
}

// AuditStore persists audit entries.
type AuditStore interface {
	Log(ctx context.Context, entry *models.AuditLog) error
}

// AlertNotifier pushes a persisted alert to subscribers.
type AlertNotifier interface {
	NotifyAlert(ctx context.Context, alert *models.Alert) error
}

// AuditExporter mirrors audit entries to an external sink.
type AuditExporter interface {
	Export(ctx context.Context, entry models.AuditLog) error
}

// Recorder writes alerts and audit entries. Alert and audit writes are
// independent: a failed alert never suppresses the audit entry.
type Recorder struct {
	alerts    AlertStore
	audit     AuditStore
	notifier  AlertNotifier
	exporters []AuditExporter
	logger    *security.Logger
	metrics   *metrics.Metrics

	auditTries    uint
	retryInterval time.Duration
	auditTimeout  time.Duration
	now           func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithNotifier publishes every persisted alert through n.
func WithNotifier(n AlertNotifier) Option {
	return func(r *Recorder) { r.notifier = n }
}

// WithAuditExporter mirrors every audit entry to e.
func WithAuditExporter(e AuditExporter) Option {
	return func(r *Recorder) { r.exporters = append(r.exporters, e) }
}

// WithAuditRetry sets the number of audit write attempts and the first backoff interval.
func WithAuditRetry(tries uint, initial time.Duration) Option {
	return func(r *Recorder) {
		r.auditTries = tries
		r.retryInterval = initial
	}
}

// WithAuditTimeout bounds each LogAudit call, retries and exports included.
// Non-positive values keep the default.
func WithAuditTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.auditTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a recorder. m may be nil.
func NewRecorder(alerts AlertStore, audit AuditStore, logger *security.Logger, m *metrics.Metrics, opts ...Option) *Recorder {
	r := &Recorder{
		alerts:        alerts,
		audit:         audit,
		logger:        logger,
		metrics:       m,
		auditTries:    3,
		retryInterval: 100 * time.Millisecond,
		auditTimeout:  DefaultAuditTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BuildAlert derives the alert snapshot for a decision. It returns nil when
// nothing matched. Finding values are not copied into the alert.
func BuildAlert(decision models.Decision, findings []models.Finding, meta models.RequestMeta) *models.Alert {
	if len(decision.Policies) == 0 {
		return nil
	}

	names := make([]string, 0, len(decision.Policies))
	for _, mp := range decision.Policies {
		names = append(names, mp.Name)
	}

	alert := &models.Alert{
		Severity:         decision.Severity,
		Status:           models.AlertStatusPending,
		SourceIP:         meta.SourceIP,
		SourceUser:       meta.SourceUser,
		SourceDevice:     meta.SourceDevice,
		Blocked:          decision.Blocked,
		ActionTaken:      decision.Summary,
		DetectedEntities: make([]models.Finding, 0, len(findings)),
	}

	primary := decision.Policies[0]
	if len(decision.Contributing) > 0 {
		primary = decision.Contributing[0]
	}
	policyID := primary.PolicyID
	alert.PolicyID = &policyID

	if len(decision.Policies) == 1 {
		alert.Title = primary.Name
		alert.Description = fmt.Sprintf("Policy %q matched %d finding(s) of type %s",
			primary.Name, primary.MatchedCount, strings.Join(primary.MatchedEntities, ", "))
	} else {
		alert.Title = MultiPolicyTitle
		alert.Description = fmt.Sprintf("%d policies matched: %s", len(names), strings.Join(names, ", "))
	}

	for _, f := range findings {
		f.Value = ""
		alert.DetectedEntities = append(alert.DetectedEntities, f)
	}
	return alert
}

// Record persists at most one alert for decision. It returns (nil, nil) when
// nothing matched, and (nil, err) when the alert could not be written.
func (r *Recorder) Record(ctx context.Context, decision models.Decision, findings []models.Finding, meta models.RequestMeta) (*models.Alert, error) {
	alert := BuildAlert(decision, findings, meta)
	if alert == nil {
		return nil, nil
	}

	if err := r.alerts.Create(ctx, alert); err != nil {
		if r.metrics != nil {
			r.metrics.AlertPersistErrors.Inc()
		}
		r.logger.Error("failed to persist alert", err)
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.AlertsCreatedTotal.Inc()
	}
	r.logger.SecurityEvent(security.EventAlertCreate, meta.SourceUser, meta.SourceIP, meta.SourceDevice,
		map[string]interface{}{
			"alert_id": alert.ID,
			"severity": alert.Severity,
			"blocked":  alert.Blocked,
		})

	if r.notifier != nil {
		if err := r.notifier.NotifyAlert(ctx, alert); err != nil {
			if r.metrics != nil {
				r.metrics.NotificationErrors.Inc()
			}
			r.logger.Warn(fmt.Sprintf("alert notification failed: %v", err))
		}
	}
	return alert, nil
}

// LogAudit writes entry with bounded exponential-backoff retries and mirrors it
// to the exporters. Failures are logged and counted, never returned. The write
// survives cancellation of ctx but never outlives the audit timeout.
func (r *Recorder) LogAudit(ctx context.Context, entry *models.AuditLog) {
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.auditTimeout)
	defer cancel()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.retryInterval

	_, err := backoff.Retry(auditCtx, func() (struct{}, error) {
		return struct{}{}, r.audit.Log(auditCtx, entry)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(r.auditTries))
	if err != nil {
		if r.metrics != nil {
			r.metrics.AuditWriteErrors.Inc()
		}
		r.logger.SecurityEvent(security.EventAuditWriteFailure, entry.SourceUser, entry.SourceIP, "",
			map[string]interface{}{"event_type": entry.EventType, "error": err.Error()})
	}

	for _, exporter := range r.exporters {
		if err := exporter.Export(auditCtx, *entry); err != nil {
			if r.metrics != nil {
				r.metrics.NotificationErrors.Inc()
			}
			r.logger.Warn(fmt.Sprintf("audit export failed: %v", err))
		}
	}
}
