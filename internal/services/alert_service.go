package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/alerting"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

// maxStatusAttempts bounds re-reads after concurrent status changes.
const maxStatusAttempts = 3

// AlertStore is the persistence contract of AlertService.
type AlertStore interface {
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	List(ctx context.Context, filter models.AlertFilter, limit, offset int) ([]models.Alert, int, error)
	UpdateStatus(ctx context.Context, alert *models.Alert, expected models.AlertStatus) error
}

// StatsStore aggregates alert counts.
type StatsStore interface {
	AlertSummary(ctx context.Context) (*models.AlertStats, error)
	PeriodSummary(ctx context.Context, since time.Time) (*models.PeriodSummary, error)
}

// AlertService handles alert triage: listing, lookup, the status lifecycle
// and dashboard statistics.
type AlertService struct {
	store     AlertStore
	stats     StatsStore
	validator *security.ValidationService
	auditor   Auditor
	logger    *security.Logger
	now       func() time.Time
}

// NewAlertService creates an AlertService.
func NewAlertService(store AlertStore, stats StatsStore, validator *security.ValidationService, auditor Auditor, logger *security.Logger) *AlertService {
	return &AlertService{
		store:     store,
		stats:     stats,
		validator: validator,
		auditor:   auditor,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns one page of alerts, newest first. Empty status or severity
// means no filter on that column.
func (s *AlertService) List(ctx context.Context, status, severity string, page, limit int) (models.Page[models.Alert], error) {
	if err := s.validator.ValidatePagination(page, limit); err != nil {
		return models.Page[models.Alert]{}, err
	}

	var filter models.AlertFilter
	if status != "" {
		st, err := s.validator.ValidateAlertStatus(status)
		if err != nil {
			return models.Page[models.Alert]{}, err
		}
		filter.Status = st
	}
	if severity != "" {
		sev, err := s.validator.ValidateSeverity(severity)
		if err != nil {
			return models.Page[models.Alert]{}, err
		}
		filter.Severity = sev
	}

	items, total, err := s.store.List(ctx, filter, limit, models.Offset(page, limit))
	if err != nil {
		return models.Page[models.Alert]{}, err
	}
	return models.NewPage(items, total, page, limit), nil
}

// Get returns one alert.
func (s *AlertService) Get(ctx context.Context, id string) (*models.Alert, error) {
	return s.store.GetByID(ctx, id)
}

// UpdateStatus moves an alert through its lifecycle.
//
// Parameters:
//   - status: Target status name
//   - resolvedBy: Recorded as resolved_by when entering a terminal status
//   - override: Permit backward and out-of-terminal moves
//   - actor: Who performs the change, for the audit trail
//
// Returns:
//   - *models.Alert: The alert after the change
//   - error: *models.ValidationError for an unknown status, ErrInvalidTransition
//     for an illegal move without override, ErrNotFound for unknown alerts
//
// Moving an alert to its current status succeeds without writing anything.
// The write only lands if the status is still the one the transition was
// checked against; otherwise the alert is re-read and the move re-checked.
func (s *AlertService) UpdateStatus(ctx context.Context, id, status, resolvedBy string, override bool, actor models.Actor) (*models.Alert, error) {
	next, err := s.validator.ValidateAlertStatus(status)
	if err != nil {
		return nil, err
	}

	if resolvedBy == "" {
		resolvedBy = actor.User
	}

	var (
		alert    *models.Alert
		previous models.AlertStatus
		changed  bool
	)
	for attempt := 1; ; attempt++ {
		alert, err = s.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		previous = alert.Status

		changed, err = alerting.Transition(alert, next, resolvedBy, override, s.now())
		if err != nil {
			return nil, err
		}
		if !changed {
			return alert, nil
		}

		err = s.store.UpdateStatus(ctx, alert, previous)
		if err == nil {
			break
		}
		// Another writer moved the alert; re-check the move against its new status.
		if !errors.Is(err, models.ErrStaleStatus) || attempt == maxStatusAttempts {
			return nil, err
		}
	}

	alertID := alert.ID
	s.auditor.LogAudit(ctx, &models.AuditLog{
		EventType:  models.AuditEventAlertStatusChange,
		Level:      models.AuditLevelInfo,
		Message:    fmt.Sprintf("Alert status changed from %s to %s", previous, next),
		SourceUser: actor.User,
		SourceIP:   actor.IP,
		ObjectType: "alert",
		ObjectID:   &alertID,
		Metadata: map[string]interface{}{
			"from":     previous,
			"to":       next,
			"override": override,
		},
	})
	s.logger.SecurityEvent(security.EventAlertStatusChange, actor.User, actor.IP, "", map[string]interface{}{
		"alert_id": alert.ID,
		"from":     previous,
		"to":       next,
		"override": override,
	})
	return alert, nil
}

// SummaryStats returns the dashboard counts.
func (s *AlertService) SummaryStats(ctx context.Context) (*models.AlertStats, error) {
	return s.stats.AlertSummary(ctx)
}

// PeriodSummary reports activity over the trailing days days, ending now.
func (s *AlertService) PeriodSummary(ctx context.Context, days int) (*models.PeriodSummary, error) {
	if err := s.validator.ValidateReportDays(days); err != nil {
		return nil, err
	}
	until := s.now().UTC()
	summary, err := s.stats.PeriodSummary(ctx, until.AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}
	summary.Days, summary.Until = days, until
	return summary, nil
}
