package handlers

import (
	"testing"

	"github.com/gofiber/fiber/v2"
)

func newAdminApp() *fiber.App {
	app := fiber.New()
	app.Post("/admin/users", CreateUser)
	app.Get("/admin/users", ListUsers)
	return app
}

func TestCreateUserValidation(t *testing.T) {
	app := newAdminApp()

	status, _ := postJSON(t, app, "/admin/users", CreateUserRequest{
		Username: "rina",
		Email:    "rina@example.com",
		Password: "secret",
		Role:     "cashier",
	})
	if status != fiber.StatusBadRequest {
		t.Fatalf("missing user_id must be 400, got %d", status)
	}

	status, body := postJSON(t, app, "/admin/users", CreateUserRequest{
		UserID:   "cashier-9",
		Username: "rina",
		Email:    "rina@example.com",
		Password: "secret",
		Role:     "intern",
	})
	if status != fiber.StatusBadRequest {
		t.Fatalf("invalid role must be 400, got %d", status)
	}
	if _, ok := body["valid_roles"]; !ok {
		t.Fatalf("rejection must list the valid roles, got %v", body)
	}
}

func TestListUsersRejectsUnknownRole(t *testing.T) {
	app := newAdminApp()

	status, _ := getJSON(t, app, "/admin/users?role=intern")
	if status != fiber.StatusBadRequest {
		t.Fatalf("unknown role filter must be 400, got %d", status)
	}
}
