package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"pos-monitor/models"
	"pos-monitor/services"
)

func RequireAuth(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	session, err := services.GetAuthSessionByToken(c.Context(), token)
	if err != nil {
		slog.Error("Failed to get auth session", "error", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	if session == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	// Set user information in locals for downstream handlers
	c.Locals("user_id", session.UserID)
	c.Locals("username", session.Username)
	c.Locals("email", session.Email)
	c.Locals("role", session.Role)

	// Extend session expiration on activity
	services.ExtendAuthSession(c.Context(), token)

	return c.Next()
}

func RequireRole(roles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userRole := c.Locals("role")
		if userRole == nil {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied",
			})
		}

		roleStr, ok := userRole.(string)
		if !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Invalid role",
			})
		}

		currentRole := models.UserRole(roleStr)
		for _, allowedRole := range roles {
			if currentRole == allowedRole {
				return c.Next()
			}
		}

		slog.Info("Access denied", "userRole", currentRole, "requiredRoles", roles)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Insufficient permissions",
		})
	}
}

// RequirePermission gates a route on the role permission table rather than a
// fixed role list, so a permission granted to a new role needs no route change.
func RequirePermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roleStr, ok := c.Locals("role").(string)
		if !ok || roleStr == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied",
			})
		}

		holder := models.User{Role: models.UserRole(roleStr)}
		if !holder.HasPermission(permission) {
			slog.Info("Access denied", "role", roleStr, "permission", permission)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient permissions",
			})
		}

		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
