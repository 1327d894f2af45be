package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

// TestAdminToken covers the bearer token guard.
func TestAdminToken(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		header     string
		wantStatus int
	}{
		{"disabled guard passes", "", "", fiber.StatusOK},
		{"valid token", "s3cret", "Bearer s3cret", fiber.StatusOK},
		{"missing header", "s3cret", "", fiber.StatusUnauthorized},
		{"wrong scheme", "s3cret", "Basic s3cret", fiber.StatusUnauthorized},
		{"wrong token", "s3cret", "Bearer nope", fiber.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/admin", AdminToken(tt.token), func(c *fiber.Ctx) error {
				return c.SendString("ok")
			})

			req := httptest.NewRequest("GET", "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
		})
	}
}

// TestIdentify verifies the asserted user reaches handlers.
func TestIdentify(t *testing.T) {
	app := fiber.New()
	app.Use(Identify())

	var user string
	app.Get("/whoami", func(c *fiber.Ctx) error {
		user = Caller(c).User
		return c.SendString(user)
	})

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set(HeaderUser, "  alice  ")
	if _, err := app.Test(req); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	if user != "alice" {
		t.Errorf("Expected user alice, got %q", user)
	}
}

// TestCaller_WithoutIdentify falls back to the client IP.
func TestCaller_WithoutIdentify(t *testing.T) {
	app := fiber.New()

	var user, ip string
	app.Get("/whoami", func(c *fiber.Ctx) error {
		actor := Caller(c)
		user, ip = actor.User, actor.IP
		return nil
	})

	if _, err := app.Test(httptest.NewRequest("GET", "/whoami", nil)); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	if user != "" {
		t.Errorf("Expected empty user, got %q", user)
	}
	if ip == "" {
		t.Error("Expected client IP to be set")
	}
}
