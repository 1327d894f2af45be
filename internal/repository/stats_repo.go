// Package repository implements the PostgreSQL data access layer for the data protection service.
// This file provides statistical aggregation queries for dashboard displays.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/database"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
)

// StatsRepository handles statistical queries for dashboard displays.
type StatsRepository struct {
	db database.DBInterface
}

// NewStatsRepository creates a new instance of StatsRepository.
func NewStatsRepository(db database.DBInterface) *StatsRepository {
	return &StatsRepository{db: db}
}

// AlertSummary aggregates alert counts for the dashboard in a single query.
//
// Returns:
//   - *models.AlertStats: total, pending, resolved and blocked counts
//   - error: Database error if query fails
//
// Database: COUNT(*) FILTER aggregations over the alerts table
func (r *StatsRepository) AlertSummary(ctx context.Context) (*models.AlertStats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'resolved') AS resolved,
			COUNT(*) FILTER (WHERE blocked) AS blocked
		FROM alerts
	`

	stats := &models.AlertStats{}
	err := r.db.QueryRow(ctx, query).Scan(&stats.Total, &stats.Pending, &stats.Resolved, &stats.Blocked)
	if err != nil {
		return nil, fmt.Errorf("alert summary: %w", err)
	}
	return stats, nil
}

// PeriodSummary counts audit entries, alerts and blocked alerts created since
// the given instant, the currently active policies, and the detected entities
// of those alerts grouped by entity type.
//
// Returns:
//   - *models.PeriodSummary: counts with Since set; Days and Until are left to the caller
//   - error: Database error if a query fails
//
// Database: scalar sub-selects, then jsonb_array_elements over alerts.detected_entities
func (r *StatsRepository) PeriodSummary(ctx context.Context, since time.Time) (*models.PeriodSummary, error) {
	counts := `
		SELECT
			(SELECT COUNT(*) FROM audit_logs WHERE created_at >= $1) AS logs,
			(SELECT COUNT(*) FROM alerts WHERE created_at >= $1) AS alerts,
			(SELECT COUNT(*) FROM alerts WHERE created_at >= $1 AND blocked) AS blocked,
			(SELECT COUNT(*) FROM policies WHERE enabled AND NOT deleted) AS active_policies
	`
	summary := &models.PeriodSummary{Since: since, EntityBreakdown: map[string]int{}}
	err := r.db.QueryRow(ctx, counts, since).Scan(
		&summary.Logs, &summary.Alerts, &summary.BlockedAlerts, &summary.ActivePolicies,
	)
	if err != nil {
		return nil, fmt.Errorf("period summary: %w", err)
	}

	breakdown := `
		SELECT COALESCE(finding->>'entity_type', '') AS entity_type, COUNT(*) AS n
		FROM alerts, jsonb_array_elements(alerts.detected_entities) AS finding
		WHERE alerts.created_at >= $1
		GROUP BY 1
		ORDER BY 1
	`
	rows, err := r.db.Query(ctx, breakdown, since)
	if err != nil {
		return nil, fmt.Errorf("entity breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entityType string
			n          int
		)
		if err := rows.Scan(&entityType, &n); err != nil {
			return nil, fmt.Errorf("failed to scan entity breakdown: %w", err)
		}
		summary.EntityBreakdown[entityType] = n
		summary.DetectedEntities += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entity breakdown: %w", err)
	}
	return summary, nil
}
