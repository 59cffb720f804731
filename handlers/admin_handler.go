package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"pos-monitor/models"
	"pos-monitor/services"
)

type CreateUserRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
	Role     string `json:"role"`
	StoreID  string `json:"store_id,omitempty"`
}

// CreateUser provisions a new directory user. Only callers holding the
// manage_users permission reach this handler.
func CreateUser(c *fiber.Ctx) error {
	var req CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.UserID == "" || req.Username == "" || req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id, username, email, and password are required",
		})
	}

	if !models.IsValidRole(req.Role) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid role",
			"valid_roles": []string{
				string(models.RoleAdmin),
				string(models.RoleSupervisor),
				string(models.RoleCashier),
			},
		})
	}

	user := &models.User{
		UserID:       req.UserID,
		Username:     req.Username,
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: req.Password, // hashed by CreateUser
		Role:         models.UserRole(req.Role),
		StoreID:      req.StoreID,
	}

	if err := services.CreateUser(c.Context(), user); err != nil {
		status := errorStatus(err)
		if status == fiber.StatusInternalServerError {
			slog.Error("Failed to create user", "error", err, "userID", req.UserID)
			return c.Status(status).JSON(fiber.Map{
				"error": "Failed to create user",
			})
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User created successfully",
		"user":    user,
	})
}

// ListUsers returns active directory users, filtered by role when given.
func ListUsers(c *fiber.Ctx) error {
	role := c.Query("role", string(models.RoleCashier))
	if !models.IsValidRole(role) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid role",
		})
	}

	users, err := services.GetUsersByRole(c.Context(), models.UserRole(role))
	if err != nil {
		slog.Error("Failed to list users", "error", err, "role", role)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list users",
		})
	}

	return c.JSON(fiber.Map{
		"users": users,
		"count": len(users),
	})
}
