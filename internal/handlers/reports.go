package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

// Reporter builds period reports. *services.AlertService satisfies it.
type Reporter interface {
	PeriodSummary(ctx context.Context, days int) (*models.PeriodSummary, error)
}

// ReportHandler serves GET /api/reports/summary.
type ReportHandler struct {
	reports Reporter
	logger  *security.Logger
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(reports Reporter, logger *security.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, logger: logger}
}

// Summary returns activity counts for the trailing days days (default 7).
func (h *ReportHandler) Summary(c *fiber.Ctx) error {
	summary, err := h.reports.PeriodSummary(c.UserContext(), c.QueryInt("days", 7))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(summary)
}
