// Package middleware provides the fiber middleware of the HTTP adapter:
// request logging, security headers, rate limiting and caller identification.
package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

// SecurityMiddleware provides centralized security functionality.
type SecurityMiddleware struct {
	logger *security.Logger
	config *security.SecurityConfig
}

// NewSecurityMiddleware creates a new security middleware instance.
func NewSecurityMiddleware(logger *security.Logger, config *security.SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{logger: logger, config: config}
}

// RateLimit rejects callers that exhausted their bucket in limiter with 429.
// Callers are identified by client IP.
func (sm *SecurityMiddleware) RateLimit(limiter *security.RateLimiter, endpointName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := c.IP()

		if !limiter.Allow(identifier) {
			sm.logger.SecurityEvent(security.EventRateLimitExceeded, CallerUser(c), c.IP(), "",
				map[string]interface{}{
					"endpoint": endpointName,
					"limit":    sm.config.RateLimitAnalyze,
				})

			c.Set("Retry-After", "60")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded, please try again later",
			})
		}

		return c.Next()
	}
}

// RequestLogger logs every HTTP request with status and latency.
func (sm *SecurityMiddleware) RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		sm.logger.HTTPRequest(c.Method(), c.Path(), status, time.Since(start).Milliseconds(), c.IP())

		if status == fiber.StatusForbidden || status == fiber.StatusUnauthorized {
			sm.logger.SecurityEvent(security.EventAccessDenied, CallerUser(c), c.IP(), "",
				map[string]interface{}{
					"method": c.Method(),
					"path":   c.Path(),
					"status": status,
				})
		}

		return err
	}
}

// SecureHeaders adds security headers to API responses.
func (sm *SecurityMiddleware) SecureHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Set("Referrer-Policy", "no-referrer")
		c.Set("Cache-Control", "no-store")

		return c.Next()
	}
}
