package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"pos-monitor/services"
)

var (
	sessionService *services.CashierSessionService
	hub            *services.Hub
	notifier       *services.NotificationService
)

// Init wires the handler package to the services built at boot.
func Init(svc *services.CashierSessionService, h *services.Hub, n *services.NotificationService) {
	sessionService = svc
	hub = h
	notifier = n
}

// errorStatus maps service errors onto HTTP status codes. Unknown errors map
// to 500 and the handler responds with a generic message so internal detail
// never leaks to the caller.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrAuthentication):
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}
