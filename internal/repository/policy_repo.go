// Package repository implements the PostgreSQL data access layer for the data protection service.
// This file handles policy persistence including soft delete and restore.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/database"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
)

// PostgreSQL SQLSTATE codes mapped by the repositories.
const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02" // e.g. a malformed UUID literal
)

const policyColumns = `id, name, description, entity_types, action, severity, enabled, deleted,
	apply_to_network, apply_to_devices, apply_to_storage, gdpr_compliant, hipaa_compliant,
	created_by, created_at, updated_at, deleted_at`

// PolicyRepository handles policy-related database operations.
// Deleted policies stay in the table with deleted = true and are filtered out
// of every read except ListDeleted and Restore.
type PolicyRepository struct {
	db database.DBInterface
}

// NewPolicyRepository creates a new instance of PolicyRepository.
//
// Parameters:
//   - db: Connection pool (or pgxmock pool in tests)
//
// Returns:
//   - *PolicyRepository: Initialized repository instance
func NewPolicyRepository(db database.DBInterface) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPolicy(row rowScanner) (*models.Policy, error) {
	var (
		p        models.Policy
		action   string
		severity string
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.EntityTypes, &action, &severity, &p.Enabled, &p.Deleted,
		&p.ApplyToNetwork, &p.ApplyToDevices, &p.ApplyToStorage, &p.GDPRCompliant, &p.HIPAACompliant,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Action = models.Action(action)
	p.Severity = models.Severity(severity)
	return &p, nil
}

func collectPolicies(rows pgx.Rows) ([]models.Policy, error) {
	defer rows.Close()

	policies := []models.Policy{}
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate policies: %w", err)
	}
	return policies, nil
}

// mapWriteError turns a unique violation on the live-name index into a
// validation error and wraps everything else as a persistence failure.
// isMalformedID reports whether err is PostgreSQL rejecting an id that is not
// a UUID. Such ids cannot name any row.
func isMalformedID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return models.NewValidationError("name", "a policy with this name already exists")
	}
	return fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
}

// Create inserts a new policy record.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - policy: Fully validated policy; ID is generated when empty
//
// Returns:
//   - error: *models.ValidationError on a duplicate live name, ErrPersistence otherwise
//
// Side Effects: Populates policy.ID and policy.CreatedAt
func (r *PolicyRepository) Create(ctx context.Context, policy *models.Policy) error {
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}

	query := `
		INSERT INTO policies (id, name, description, entity_types, action, severity, enabled,
			apply_to_network, apply_to_devices, apply_to_storage, gdpr_compliant, hipaa_compliant, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		policy.ID, policy.Name, policy.Description, policy.EntityTypes, string(policy.Action),
		string(policy.Severity), policy.Enabled, policy.ApplyToNetwork, policy.ApplyToDevices,
		policy.ApplyToStorage, policy.GDPRCompliant, policy.HIPAACompliant, policy.CreatedBy,
	).Scan(&policy.CreatedAt)
	if err != nil {
		return mapWriteError("create policy", err)
	}
	return nil
}

// Update overwrites the mutable fields of a live policy.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - policy: Policy carrying the merged, validated field values
//
// Returns:
//   - error: ErrNotFound when the policy is unknown or deleted, *models.ValidationError
//     on a duplicate live name, ErrPersistence otherwise
//
// Side Effects: Populates policy.UpdatedAt
func (r *PolicyRepository) Update(ctx context.Context, policy *models.Policy) error {
	query := `
		UPDATE policies
		SET name = $2, description = $3, entity_types = $4, action = $5, severity = $6, enabled = $7,
			apply_to_network = $8, apply_to_devices = $9, apply_to_storage = $10,
			gdpr_compliant = $11, hipaa_compliant = $12, updated_at = NOW()
		WHERE id = $1 AND deleted = false
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		policy.ID, policy.Name, policy.Description, policy.EntityTypes, string(policy.Action),
		string(policy.Severity), policy.Enabled, policy.ApplyToNetwork, policy.ApplyToDevices,
		policy.ApplyToStorage, policy.GDPRCompliant, policy.HIPAACompliant,
	).Scan(&policy.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) || isMalformedID(err) {
		return models.NotFoundError("policy", policy.ID)
	}
	if err != nil {
		return mapWriteError("update policy", err)
	}
	return nil
}

// GetByID retrieves a live policy.
//
// Returns:
//   - *models.Policy: The policy
//   - error: ErrNotFound when unknown, soft deleted or not a UUID
func (r *PolicyRepository) GetByID(ctx context.Context, id string) (*models.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies WHERE id = $1 AND deleted = false`

	p, err := scanPolicy(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) || isMalformedID(err) {
		return nil, models.NotFoundError("policy", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	return p, nil
}

// List retrieves one page of live policies, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - enabled: Optional filter on the enabled flag; nil lists both
//   - limit, offset: Page window
//
// Returns:
//   - []models.Policy: Policies in the window (empty slice if none)
//   - int: Total live policies matching the filter
//   - error: Database error if a query fails
func (r *PolicyRepository) List(ctx context.Context, enabled *bool, limit, offset int) ([]models.Policy, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM policies WHERE deleted = false AND ($1::boolean IS NULL OR enabled = $1)`
	if err := r.db.QueryRow(ctx, countQuery, enabled).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count policies: %w", err)
	}

	query := `
		SELECT ` + policyColumns + `
		FROM policies
		WHERE deleted = false AND ($1::boolean IS NULL OR enabled = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, enabled, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list policies: %w", err)
	}
	policies, err := collectPolicies(rows)
	if err != nil {
		return nil, 0, err
	}
	return policies, total, nil
}

// ListDeleted retrieves one page of soft-deleted policies, most recently deleted first.
func (r *PolicyRepository) ListDeleted(ctx context.Context, limit, offset int) ([]models.Policy, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM policies WHERE deleted = true`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deleted policies: %w", err)
	}

	query := `
		SELECT ` + policyColumns + `
		FROM policies
		WHERE deleted = true
		ORDER BY deleted_at DESC NULLS LAST, id
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list deleted policies: %w", err)
	}
	policies, err := collectPolicies(rows)
	if err != nil {
		return nil, 0, err
	}
	return policies, total, nil
}

// ListActive returns every enabled, non-deleted policy in creation order.
// One call is the policy snapshot for a single analysis request.
func (r *PolicyRepository) ListActive(ctx context.Context) ([]models.Policy, error) {
	query := `
		SELECT ` + policyColumns + `
		FROM policies
		WHERE enabled = true AND deleted = false
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active policies: %w", err)
	}
	return collectPolicies(rows)
}

// SoftDelete flags a live policy as deleted and stamps deleted_at.
//
// Returns:
//   - error: ErrNotFound when the policy is unknown or already deleted
func (r *PolicyRepository) SoftDelete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE policies SET deleted = true, deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted = false`,
		id,
	)
	if isMalformedID(err) {
		return models.NotFoundError("policy", id)
	}
	if err != nil {
		return mapWriteError("delete policy", err)
	}
	if tag.RowsAffected() == 0 {
		return models.NotFoundError("policy", id)
	}
	return nil
}

// Restore clears the deleted flag of a soft-deleted policy.
//
// Returns:
//   - *models.Policy: The restored policy
//   - error: ErrNotFound when no deleted policy has this id, *models.ValidationError
//     when a live policy already uses its name
func (r *PolicyRepository) Restore(ctx context.Context, id string) (*models.Policy, error) {
	query := `
		UPDATE policies
		SET deleted = false, deleted_at = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted = true
		RETURNING ` + policyColumns

	p, err := scanPolicy(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) || isMalformedID(err) {
		return nil, models.NotFoundError("deleted policy", id)
	}
	if err != nil {
		return nil, mapWriteError("restore policy", err)
	}
	return p, nil
}

// NameTaken reports whether a live policy other than excludeID already uses name.
// Pass an empty excludeID when creating.
func (r *PolicyRepository) NameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM policies
			WHERE name = $1 AND deleted = false AND ($2 = '' OR id::text <> $2)
		)
	`
	var taken bool
	if err := r.db.QueryRow(ctx, query, name, excludeID).Scan(&taken); err != nil {
		return false, fmt.Errorf("check policy name: %w", err)
	}
	return taken, nil
}
