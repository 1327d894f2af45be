package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

// AuditReader lists audit entries. *repository.AuditRepository satisfies it.
type AuditReader interface {
	ListRecent(ctx context.Context, filter models.AuditFilter, limit int) ([]models.AuditLog, error)
}

// AuditHandler serves GET /api/audit and its alias GET /api/reports/logs.
type AuditHandler struct {
	audit     AuditReader
	config    *security.SecurityConfig
	validator *security.ValidationService
	logger    *security.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit AuditReader, config *security.SecurityConfig, logger *security.Logger) *AuditHandler {
	return &AuditHandler{
		audit:     audit,
		config:    config,
		validator: security.NewValidationService(config),
		logger:    logger,
	}
}

// Recent returns the newest audit entries, newest first, optionally narrowed
// by the event_type and level query parameters. limit defaults to 100 and
// must not exceed MaxAuditLimit.
func (h *AuditHandler) Recent(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	if limit < 1 || limit > h.config.MaxAuditLimit {
		return respondError(c, h.logger, models.NewValidationError("limit", "must be between 1 and %d", h.config.MaxAuditLimit))
	}

	filter := models.AuditFilter{EventType: c.Query("event_type"), Level: c.Query("level")}
	if err := h.validator.ValidateAuditFilter(&filter); err != nil {
		return respondError(c, h.logger, err)
	}

	entries, err := h.audit.ListRecent(c.UserContext(), filter, limit)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{"items": entries, "count": len(entries), "limit": limit})
}
