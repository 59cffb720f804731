package handlers

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"pos-monitor/models"
	"pos-monitor/services"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    *models.User `json:"user"`
}

func Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email and password are required",
		})
	}

	user, err := services.GetUserByEmail(c.Context(), req.Email)
	if err != nil {
		slog.Error("Failed to get user", "error", err, "email", req.Email)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	if !user.IsActive {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Account is disabled",
		})
	}

	if err := services.VerifyPassword(user, req.Password); err != nil {
		slog.Info("Invalid password attempt", "email", req.Email)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	session, err := services.CreateAuthSession(
		c.Context(),
		user.UserID,
		user.Username,
		user.Email,
		string(user.Role),
		c.IP(),
		c.Get("User-Agent"),
	)
	if err != nil {
		slog.Error("Failed to create auth session", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create session",
		})
	}

	if err := services.UpdateUserLastLogin(c.Context(), user.UserID); err != nil {
		slog.Error("Failed to update last login", "error", err)
	}

	slog.Info("User logged in", "userID", user.UserID, "email", user.Email)

	return c.Status(fiber.StatusOK).JSON(LoginResponse{
		Message: "Login successful",
		Token:   session.Token,
		User:    user,
	})
}

func Logout(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Logged out successfully",
		})
	}

	session, _ := services.GetAuthSessionByToken(c.Context(), token)
	var userID string
	if session != nil {
		userID = session.UserID
	}

	if err := services.DestroyAuthSession(c.Context(), token); err != nil {
		slog.Error("Failed to destroy auth session", "error", err)
	}

	slog.Info("User logged out", "userID", userID)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Logged out successfully",
	})
}

// LogoutAll revokes every session the caller holds, across all devices.
func LogoutAll(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Not authenticated",
		})
	}

	session, err := services.GetAuthSessionByToken(c.Context(), token)
	if err != nil || session == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Not authenticated",
		})
	}

	if err := services.DestroyUserAuthSessions(c.Context(), session.UserID); err != nil {
		slog.Error("Failed to destroy user sessions", "error", err, "userID", session.UserID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to log out",
		})
	}

	slog.Info("User logged out everywhere", "userID", session.UserID)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Logged out on all devices",
	})
}

func GetCurrentUser(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Not authenticated",
		})
	}

	session, err := services.GetAuthSessionByToken(c.Context(), token)
	if err != nil || session == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Not authenticated",
		})
	}

	user, err := services.GetUserByID(c.Context(), session.UserID)
	if err != nil {
		slog.Error("Failed to get user", "error", err, "userID", session.UserID)
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error": "Failed to get user information",
		})
	}

	return c.Status(fiber.StatusOK).JSON(user)
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
