// Package services provides the business logic layer of the data protection
// service: policy administration and alert triage. Handlers and the CLI call
// into this package; it owns validation and the audit trail of mutations.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

// PolicyStore is the persistence contract of PolicyService.
// *repository.PolicyRepository satisfies it.
type PolicyStore interface {
	Create(ctx context.Context, policy *models.Policy) error
	Update(ctx context.Context, policy *models.Policy) error
	GetByID(ctx context.Context, id string) (*models.Policy, error)
	List(ctx context.Context, enabled *bool, limit, offset int) ([]models.Policy, int, error)
	ListDeleted(ctx context.Context, limit, offset int) ([]models.Policy, int, error)
	ListActive(ctx context.Context) ([]models.Policy, error)
	SoftDelete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) (*models.Policy, error)
	NameTaken(ctx context.Context, name, excludeID string) (bool, error)
}

// Auditor records audit entries. Failures are handled by the implementation
// and never surface to the caller. *alerting.Recorder satisfies it.
type Auditor interface {
	LogAudit(ctx context.Context, entry *models.AuditLog)
}

// PolicyService handles policy administration.
//
// Dependencies:
//   - PolicyStore: Database access for policy records
//   - ValidationService: Input normalization and validation
//   - Auditor: Audit trail for every successful mutation
//
// Every successful create, update, delete and restore produces exactly one
// audit entry. Rejected or failed mutations produce none.
type PolicyService struct {
	store     PolicyStore
	validator *security.ValidationService
	auditor   Auditor
	logger    *security.Logger
}

// NewPolicyService creates a PolicyService.
//
// Example:
//
//	svc := services.NewPolicyService(repository.NewPolicyRepository(pool), validator, recorder, logger)
//	policy, err := svc.Create(ctx, input, models.Actor{User: "admin"})
func NewPolicyService(store PolicyStore, validator *security.ValidationService, auditor Auditor, logger *security.Logger) *PolicyService {
	return &PolicyService{store: store, validator: validator, auditor: auditor, logger: logger}
}

// Create validates in and persists a new policy.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - in: Create payload; normalized in place
//   - actor: Who performs the mutation, for the audit trail
//
// Returns:
//   - *models.Policy: The persisted policy with ID and CreatedAt populated
//   - error: *models.ValidationError for bad input or a duplicate live name,
//     ErrPersistence for storage failures
func (s *PolicyService) Create(ctx context.Context, in models.PolicyInput, actor models.Actor) (*models.Policy, error) {
	if err := s.validator.ValidatePolicyInput(&in); err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, in.Name, ""); err != nil {
		return nil, err
	}

	policy := in.ToPolicy()
	if policy.CreatedBy == "" {
		policy.CreatedBy = actor.User
	}
	if err := s.store.Create(ctx, &policy); err != nil {
		return nil, err
	}

	s.audit(ctx, models.AuditEventPolicyCreate, security.EventPolicyCreate, &policy, actor,
		fmt.Sprintf("Policy %q created", policy.Name))
	return &policy, nil
}

// Update applies a partial update to a live policy and validates the merged result.
//
// Returns:
//   - *models.Policy: The updated policy
//   - error: ErrNotFound for unknown or deleted policies, *models.ValidationError
//     when the merged policy is invalid or its new name is taken
func (s *PolicyService) Update(ctx context.Context, id string, upd models.PolicyUpdate, actor models.Actor) (*models.Policy, error) {
	policy, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	previousName := policy.Name
	upd.Apply(policy)
	if err := s.validator.ValidatePolicy(policy); err != nil {
		return nil, err
	}
	if policy.Name != previousName {
		if err := s.ensureNameFree(ctx, policy.Name, policy.ID); err != nil {
			return nil, err
		}
	}

	if err := s.store.Update(ctx, policy); err != nil {
		return nil, err
	}

	s.audit(ctx, models.AuditEventPolicyUpdate, security.EventPolicyUpdate, policy, actor,
		fmt.Sprintf("Policy %q updated", policy.Name))
	return policy, nil
}

// Get returns a live policy.
func (s *PolicyService) Get(ctx context.Context, id string) (*models.Policy, error) {
	return s.store.GetByID(ctx, id)
}

// List returns one page of live policies, optionally filtered by enabled.
func (s *PolicyService) List(ctx context.Context, enabled *bool, page, limit int) (models.Page[models.Policy], error) {
	if err := s.validator.ValidatePagination(page, limit); err != nil {
		return models.Page[models.Policy]{}, err
	}
	items, total, err := s.store.List(ctx, enabled, limit, models.Offset(page, limit))
	if err != nil {
		return models.Page[models.Policy]{}, err
	}
	return models.NewPage(items, total, page, limit), nil
}

// ListDeleted returns one page of soft-deleted policies.
func (s *PolicyService) ListDeleted(ctx context.Context, page, limit int) (models.Page[models.Policy], error) {
	if err := s.validator.ValidatePagination(page, limit); err != nil {
		return models.Page[models.Policy]{}, err
	}
	items, total, err := s.store.ListDeleted(ctx, limit, models.Offset(page, limit))
	if err != nil {
		return models.Page[models.Policy]{}, err
	}
	return models.NewPage(items, total, page, limit), nil
}

// ActivePolicies returns the enabled, non-deleted policies: the snapshot one
// analysis request is evaluated against.
func (s *PolicyService) ActivePolicies(ctx context.Context) ([]models.Policy, error) {
	return s.store.ListActive(ctx)
}

// SoftDelete marks a live policy deleted. Deleted policies never match and are
// hidden from Get and List until restored.
func (s *PolicyService) SoftDelete(ctx context.Context, id string, actor models.Actor) error {
	policy, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.SoftDelete(ctx, id); err != nil {
		return err
	}

	s.audit(ctx, models.AuditEventPolicyDelete, security.EventPolicyDelete, policy, actor,
		fmt.Sprintf("Policy %q deleted", policy.Name))
	return nil
}

// Restore brings a soft-deleted policy back.
//
// Returns:
//   - error: ErrNotFound when no deleted policy has this id,
//     *models.ValidationError when a live policy took its name meanwhile
func (s *PolicyService) Restore(ctx context.Context, id string, actor models.Actor) (*models.Policy, error) {
	policy, err := s.store.Restore(ctx, id)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, models.AuditEventPolicyRestore, security.EventPolicyRestore, policy, actor,
		fmt.Sprintf("Policy %q restored", policy.Name))
	return policy, nil
}

// Seed creates every input whose name is not yet used by a live policy.
// Invalid entries are logged and skipped; storage failures abort.
//
// Returns:
//   - created: Number of policies created
//   - skipped: Number of inputs skipped (existing name or invalid)
func (s *PolicyService) Seed(ctx context.Context, inputs []models.PolicyInput, actor models.Actor) (created, skipped int, err error) {
	for _, in := range inputs {
		_, err := s.Create(ctx, in, actor)
		switch {
		case err == nil:
			created++
		case errors.Is(err, models.ErrValidation):
			skipped++
			s.logger.Info(fmt.Sprintf("Skipping seed policy %q: %v", in.Name, err))
		default:
			return created, skipped, fmt.Errorf("seed policy %q: %w", in.Name, err)
		}
	}
	s.logger.Info(fmt.Sprintf("Default policies seeded: %d new, %d skipped", created, skipped))
	return created, skipped, nil
}

func (s *PolicyService) ensureNameFree(ctx context.Context, name, excludeID string) error {
	taken, err := s.store.NameTaken(ctx, name, excludeID)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if taken {
		return models.NewValidationError("name", "a policy with this name already exists")
	}
	return nil
}

func (s *PolicyService) audit(ctx context.Context, event string, secEvent security.SecurityEventType, policy *models.Policy, actor models.Actor, message string) {
	id := policy.ID
	s.auditor.LogAudit(ctx, &models.AuditLog{
		EventType:  event,
		Level:      models.AuditLevelInfo,
		Message:    message,
		SourceUser: actor.User,
		SourceIP:   actor.IP,
		ObjectType: "policy",
		ObjectID:   &id,
		Metadata: map[string]interface{}{
			"name":         policy.Name,
			"action":       policy.Action,
			"severity":     policy.Severity,
			"entity_types": policy.EntityTypes,
			"enabled":      policy.Enabled,
		},
	})
	s.logger.SecurityEvent(secEvent, actor.User, actor.IP, "", map[string]interface{}{
		"policy_id": policy.ID,
		"name":      policy.Name,
	})
}
