// Package repository implements the PostgreSQL data access layer for the data protection service.
// This file handles alert persistence and lifecycle updates.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/database"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
)

const alertColumns = `id, title, policy_id, description, severity, status, source_ip, source_user,
	source_device, blocked, action_taken, detected_entities, created_at, resolved_by, resolved_at`

// AlertRepository handles alert-related database operations.
// Title, description and detected entities are snapshots written once at creation.
type AlertRepository struct {
	db database.DBInterface
}

// NewAlertRepository creates a new instance of AlertRepository.
func NewAlertRepository(db database.DBInterface) *AlertRepository {
	return &AlertRepository{db: db}
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		a        models.Alert
		severity string
		status   string
		entities []byte
	)
	err := row.Scan(
		&a.ID, &a.Title, &a.PolicyID, &a.Description, &severity, &status, &a.SourceIP, &a.SourceUser,
		&a.SourceDevice, &a.Blocked, &a.ActionTaken, &entities, &a.CreatedAt, &a.ResolvedBy, &a.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Severity = models.Severity(severity)
	a.Status = models.AlertStatus(status)
	a.DetectedEntities = []models.Finding{}
	if len(entities) > 0 {
		if err := json.Unmarshal(entities, &a.DetectedEntities); err != nil {
			return nil, fmt.Errorf("decode detected entities: %w", err)
		}
	}
	return &a, nil
}

// Create inserts a new alert.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - alert: Alert to persist; ID is generated when empty, status defaults to pending
//
// Returns:
//   - error: ErrPersistence wrapping the database error
//
// Side Effects: Populates alert.ID and alert.CreatedAt
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Status == "" {
		alert.Status = models.AlertStatusPending
	}
	if alert.DetectedEntities == nil {
		alert.DetectedEntities = []models.Finding{}
	}
	entities, err := json.Marshal(alert.DetectedEntities)
	if err != nil {
		return fmt.Errorf("encode detected entities: %w", err)
	}

	query := `
		INSERT INTO alerts (id, title, policy_id, description, severity, status, source_ip, source_user,
			source_device, blocked, action_taken, detected_entities)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`
	err = r.db.QueryRow(ctx, query,
		alert.ID, alert.Title, alert.PolicyID, alert.Description, string(alert.Severity), string(alert.Status),
		alert.SourceIP, alert.SourceUser, alert.SourceDevice, alert.Blocked, alert.ActionTaken, entities,
	).Scan(&alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("create alert: %w: %v", models.ErrPersistence, err)
	}
	return nil
}

// GetByID retrieves a single alert.
//
// Returns:
//   - error: ErrNotFound when no alert has this id or the id is not a UUID
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`

	a, err := scanAlert(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) || isMalformedID(err) {
		return nil, models.NotFoundError("alert", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

// alertWhere builds the WHERE clause and arguments for an alert filter.
func alertWhere(filter models.AlertFilter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Severity != "" {
		args = append(args, string(filter.Severity))
		clauses = append(clauses, fmt.Sprintf("severity = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// List retrieves one page of alerts, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - filter: Optional status and severity filters
//   - limit, offset: Page window
//
// Returns:
//   - []models.Alert: Alerts in the window (empty slice if none)
//   - int: Total alerts matching the filter
//   - error: Database error if a query fails
func (r *AlertRepository) List(ctx context.Context, filter models.AlertFilter, limit, offset int) ([]models.Alert, int, error) {
	where, args := alertWhere(filter)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM alerts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM alerts%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		alertColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return alerts, total, nil
}

// UpdateStatus persists the lifecycle fields of an alert (status, resolved_by,
// resolved_at), provided its stored status is still expected.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - alert: Alert carrying the new lifecycle fields
//   - expected: Status the caller read before deciding the transition
//
// Returns:
//   - error: ErrStaleStatus when another writer changed the status first,
//     ErrNotFound when no alert has this id, ErrPersistence otherwise
func (r *AlertRepository) UpdateStatus(ctx context.Context, alert *models.Alert, expected models.AlertStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE alerts SET status = $2, resolved_by = $3, resolved_at = $4 WHERE id = $1 AND status = $5`,
		alert.ID, string(alert.Status), alert.ResolvedBy, alert.ResolvedAt, string(expected),
	)
	if isMalformedID(err) {
		return models.NotFoundError("alert", alert.ID)
	}
	if err != nil {
		return fmt.Errorf("update alert status: %w: %v", models.ErrPersistence, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRow(ctx, `SELECT status FROM alerts WHERE id = $1`, alert.ID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.NotFoundError("alert", alert.ID)
	}
	if err != nil {
		return fmt.Errorf("read alert status: %w: %v", models.ErrPersistence, err)
	}
	return fmt.Errorf("alert %q is %s, expected %s: %w", alert.ID, current, expected, models.ErrStaleStatus)
}
