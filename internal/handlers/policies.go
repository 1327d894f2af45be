package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/middleware"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

// PolicyAdmin is the policy administration surface. *services.PolicyService satisfies it.
type PolicyAdmin interface {
	Create(ctx context.Context, in models.PolicyInput, actor models.Actor) (*models.Policy, error)
	Update(ctx context.Context, id string, upd models.PolicyUpdate, actor models.Actor) (*models.Policy, error)
	Get(ctx context.Context, id string) (*models.Policy, error)
	List(ctx context.Context, enabled *bool, page, limit int) (models.Page[models.Policy], error)
	ListDeleted(ctx context.Context, page, limit int) (models.Page[models.Policy], error)
	SoftDelete(ctx context.Context, id string, actor models.Actor) error
	Restore(ctx context.Context, id string, actor models.Actor) (*models.Policy, error)
}

// PolicyHandler handles policy administration requests.
//
// Routes:
//   - POST   /api/policies
//   - GET    /api/policies?enabled=&page=&limit=
//   - GET    /api/policies/deleted
//   - GET    /api/policies/:id
//   - PUT    /api/policies/:id
//   - DELETE /api/policies/:id
//   - POST   /api/policies/:id/restore
type PolicyHandler struct {
	policies PolicyAdmin
	config   *security.SecurityConfig
	logger   *security.Logger
}

// NewPolicyHandler creates a PolicyHandler.
func NewPolicyHandler(policies PolicyAdmin, config *security.SecurityConfig, logger *security.Logger) *PolicyHandler {
	return &PolicyHandler{policies: policies, config: config, logger: logger}
}

// Create adds a policy. Responds 201 with the stored policy.
func (h *PolicyHandler) Create(c *fiber.Ctx) error {
	var in models.PolicyInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	policy, err := h.policies.Create(c.UserContext(), in, middleware.Caller(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(policy)
}

// List returns one page of live policies. The optional enabled query
// parameter filters on the enabled flag.
func (h *PolicyHandler) List(c *fiber.Ctx) error {
	var enabled *bool
	if raw := c.Query("enabled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, "enabled must be true or false")
		}
		enabled = &v
	}

	page, limit := pagination(c, h.config)
	result, err := h.policies.List(c.UserContext(), enabled, page, limit)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(result)
}

// ListDeleted returns one page of soft-deleted policies.
func (h *PolicyHandler) ListDeleted(c *fiber.Ctx) error {
	page, limit := pagination(c, h.config)
	result, err := h.policies.ListDeleted(c.UserContext(), page, limit)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(result)
}

// Get returns one live policy.
func (h *PolicyHandler) Get(c *fiber.Ctx) error {
	policy, err := h.policies.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(policy)
}

// Update applies a partial update.
func (h *PolicyHandler) Update(c *fiber.Ctx) error {
	var upd models.PolicyUpdate
	if err := c.BodyParser(&upd); err != nil {
		return badRequest(c, "invalid request body")
	}

	policy, err := h.policies.Update(c.UserContext(), c.Params("id"), upd, middleware.Caller(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(policy)
}

// Delete soft-deletes a policy. Responds 204.
func (h *PolicyHandler) Delete(c *fiber.Ctx) error {
	if err := h.policies.SoftDelete(c.UserContext(), c.Params("id"), middleware.Caller(c)); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Restore brings a soft-deleted policy back.
func (h *PolicyHandler) Restore(c *fiber.Ctx) error {
	policy, err := h.policies.Restore(c.UserContext(), c.Params("id"), middleware.Caller(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(policy)
}
