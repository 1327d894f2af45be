// Package repository implements the PostgreSQL data access layer for the data protection service.
// This file implements the audit repository for security and compliance logging.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/database"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
)

// AuditRepository handles all database operations related to audit logging.
//
// Immutability Note:
//
//	Audit logs are NEVER modified or deleted once created. The repository
//	exposes no update or delete operation.
type AuditRepository struct {
	db database.DBInterface
}

// NewAuditRepository creates and returns a new AuditRepository instance.
//
// Example:
//
//	repo := repository.NewAuditRepository(pool)
//	err := repo.Log(ctx, entry)
func NewAuditRepository(db database.DBInterface) *AuditRepository {
	return &AuditRepository{db: db}
}

// Log creates a new audit log entry.
//
// Called once per analysis request and once per administrative mutation.
// Metadata is stored as JSONB; it must never contain raw analyzed text.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - entry: AuditLog entry to create (EventType required)
//
// Returns:
//   - error: ErrPersistence wrapping the database error
//
// Side Effects:
//   - Sets entry.ID when empty
//   - Sets entry.CreatedAt to the server timestamp
func (r *AuditRepository) Log(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Level == "" {
		entry.Level = models.AuditLevelInfo
	}
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}

	query := `
        INSERT INTO audit_logs (id, event_type, level, message, source_user, source_ip, object_type, object_id, metadata)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING created_at
    `
	err = r.db.QueryRow(ctx, query,
		entry.ID, entry.EventType, entry.Level, entry.Message, entry.SourceUser, entry.SourceIP,
		entry.ObjectType, entry.ObjectID, raw,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("write audit log: %w: %v", models.ErrPersistence, err)
	}
	return nil
}

// auditWhere builds the WHERE clause and arguments for an audit filter.
func auditWhere(filter models.AuditFilter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	if filter.EventType != "" {
		args = append(args, filter.EventType)
		clauses = append(clauses, fmt.Sprintf("event_type = $%d", len(args)))
	}
	if filter.Level != "" {
		args = append(args, filter.Level)
		clauses = append(clauses, fmt.Sprintf("level = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListRecent retrieves the most recent audit log entries, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - filter: Optional event type and level filters
//   - limit: Maximum number of entries to retrieve
//
// Returns:
//   - []models.AuditLog: Recent entries (empty slice if none)
//   - error: Database error if query fails
func (r *AuditRepository) ListRecent(ctx context.Context, filter models.AuditFilter, limit int) ([]models.AuditLog, error) {
	where, args := auditWhere(filter)
	query := fmt.Sprintf(`
        SELECT id, event_type, level, message, source_user, source_ip, object_type, object_id, metadata, created_at
        FROM audit_logs%s
        ORDER BY created_at DESC
        LIMIT $%d
    `, where, len(args)+1)
	rows, err := r.db.Query(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	logs := []models.AuditLog{}
	for rows.Next() {
		var (
			entry models.AuditLog
			raw   []byte
		)
		if err := rows.Scan(
			&entry.ID, &entry.EventType, &entry.Level, &entry.Message, &entry.SourceUser, &entry.SourceIP,
			&entry.ObjectType, &entry.ObjectID, &raw, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
	}
	return logs, nil
}
