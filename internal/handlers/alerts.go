package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/middleware"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

// AlertTriage is the alert surface. *services.AlertService satisfies it.
type AlertTriage interface {
	List(ctx context.Context, status, severity string, page, limit int) (models.Page[models.Alert], error)
	Get(ctx context.Context, id string) (*models.Alert, error)
	UpdateStatus(ctx context.Context, id, status, resolvedBy string, override bool, actor models.Actor) (*models.Alert, error)
	SummaryStats(ctx context.Context) (*models.AlertStats, error)
}

// AlertHandler handles alert triage requests.
type AlertHandler struct {
	alerts AlertTriage
	config *security.SecurityConfig
	logger *security.Logger
}

// NewAlertHandler creates an AlertHandler.
func NewAlertHandler(alerts AlertTriage, config *security.SecurityConfig, logger *security.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, config: config, logger: logger}
}

// statusChange is the body of PUT /api/alerts/:id/status.
type statusChange struct {
	Status     string `json:"status"`
	ResolvedBy string `json:"resolved_by"`
	Override   bool   `json:"override"`
}

// List returns one page of alerts filtered by the optional status and severity query parameters.
func (h *AlertHandler) List(c *fiber.Ctx) error {
	page, limit := pagination(c, h.config)
	result, err := h.alerts.List(c.UserContext(), c.Query("status"), c.Query("severity"), page, limit)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(result)
}

// Get returns one alert.
func (h *AlertHandler) Get(c *fiber.Ctx) error {
	alert, err := h.alerts.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(alert)
}

// UpdateStatus moves an alert through its lifecycle. Illegal moves without
// override answer 409.
func (h *AlertHandler) UpdateStatus(c *fiber.Ctx) error {
	var body statusChange
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	alert, err := h.alerts.UpdateStatus(c.UserContext(), c.Params("id"), body.Status, body.ResolvedBy, body.Override, middleware.Caller(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(alert)
}

// Summary returns the dashboard counts.
func (h *AlertHandler) Summary(c *fiber.Ctx) error {
	stats, err := h.alerts.SummaryStats(c.UserContext())
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(stats)
}
