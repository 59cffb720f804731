package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"pos-monitor/models"
)

func newPermissionApp(role string) *fiber.App {
	app := fiber.New()
	app.Get("/guarded",
		func(c *fiber.Ctx) error {
			if role != "" {
				c.Locals("role", role)
			}
			return c.Next()
		},
		RequirePermission("manage_users"),
		func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})
	return app
}

func TestRequirePermission(t *testing.T) {
	cases := []struct {
		name   string
		role   string
		status int
	}{
		{"admin holds manage_users", string(models.RoleAdmin), fiber.StatusOK},
		{"supervisor lacks manage_users", string(models.RoleSupervisor), fiber.StatusForbidden},
		{"cashier lacks manage_users", string(models.RoleCashier), fiber.StatusForbidden},
		{"unknown role", "intern", fiber.StatusForbidden},
		{"missing role local", "", fiber.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newPermissionApp(tc.role)

			resp, err := app.Test(httptest.NewRequest("GET", "/guarded", nil))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.StatusCode)
			}
		})
	}
}
