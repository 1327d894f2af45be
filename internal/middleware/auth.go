package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
)

// Headers set by the upstream identity gateway.
const (
	HeaderUser   = "X-Athier-User"
	HeaderDevice = "X-Athier-Device"
)

const actorKey = "actor"

// Identify stores the caller, as asserted by the upstream gateway, in the
// request context. Authentication itself happens upstream.
//
// Context Locals Set:
//   - actor: models.Actor with the asserted user and the client IP
//
// Example:
//
//	app.Use(middleware.Identify())
func Identify() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(actorKey, models.Actor{
			User: strings.TrimSpace(c.Get(HeaderUser)),
			IP:   c.IP(),
		})
		return c.Next()
	}
}

// Caller returns the actor stored by Identify, falling back to the client IP
// alone when Identify did not run.
func Caller(c *fiber.Ctx) models.Actor {
	if actor, ok := c.Locals(actorKey).(models.Actor); ok {
		return actor
	}
	return models.Actor{IP: c.IP()}
}

// CallerUser returns the asserted user name, or "".
func CallerUser(c *fiber.Ctx) string {
	return Caller(c).User
}

// AdminToken guards administrative routes with a static bearer token.
// An empty token disables the check.
//
// Returns 401 when the Authorization header is missing and 403 when the
// token does not match.
//
// Example:
//
//	api := app.Group("/api/policies", middleware.AdminToken(cfg.AdminToken))
func AdminToken(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}

		header := c.Get(fiber.HeaderAuthorization)
		presented, found := strings.CutPrefix(header, "Bearer ")
		if !found || presented == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing bearer token"})
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "access denied"})
		}

		return c.Next()
	}
}
