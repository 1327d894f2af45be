// Package handlers implements the JSON HTTP adapter of the data protection
// service. Handlers decode requests, call the service layer and map errors to
// status codes; they hold no decision logic.
package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// respondError maps service errors to status codes:
//   - *models.ValidationError, ErrValidation: 400
//   - ErrInvalidTransition: 409
//   - ErrNotFound: 404
//   - anything else: 500, logged, with a generic message
func respondError(c *fiber.Ctx, logger *security.Logger, err error) error {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(errorBody{Error: verr.Message, Field: verr.Field})
	case errors.Is(err, models.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(errorBody{Error: err.Error()})
	case errors.Is(err, models.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(errorBody{Error: err.Error()})
	case errors.Is(err, models.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(errorBody{Error: "not found"})
	default:
		logger.Error("request failed", err)
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody{Error: "internal server error"})
	}
}

// badRequest reports an undecodable body.
func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(errorBody{Error: message})
}

// pagination reads page and limit query parameters with the configured default limit.
func pagination(c *fiber.Ctx, config *security.SecurityConfig) (page, limit int) {
	return c.QueryInt("page", 1), c.QueryInt("limit", config.DefaultPageLimit)
}

// ErrorHandler renders errors that escape handlers as JSON.
func ErrorHandler(logger *security.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(errorBody{Error: fe.Message})
		}
		return respondError(c, logger, err)
	}
}
