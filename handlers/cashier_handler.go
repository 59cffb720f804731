package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"pos-monitor/models"
)

type CheckInRequest struct {
	CashierID string `json:"cashier_id"`
}

type CheckOutRequest struct {
	CashierID     string `json:"cashier_id"`
	Reason        string `json:"reason,omitempty"`
	ReasonDetails string `json:"reason_details,omitempty"`
}

// CheckIn opens a session entry for today. Idempotent: an already-open entry
// is returned with 200 instead of 201, never a conflict error.
func CheckIn(c *fiber.Ctx) error {
	var req CheckInRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.CashierID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "cashier_id is required",
		})
	}

	result, err := sessionService.CheckIn(c.Context(), req.CashierID)
	if err != nil {
		status := errorStatus(err)
		if status == fiber.StatusInternalServerError {
			slog.Error("Check-in failed", "error", err, "cashierID", req.CashierID)
			return c.Status(status).JSON(fiber.Map{
				"error": "Failed to check in",
			})
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if notifier != nil && result.Created {
		notifier.Notify(models.NotificationCheckIn, req.CashierID, result.Session.CashierName, result.Session.ID.Hex(), nil)
	}

	status := fiber.StatusOK
	if result.Created {
		status = fiber.StatusCreated
	}

	return c.Status(status).JSON(fiber.Map{
		"session": result.Session,
		"entry":   result.Entry,
		"created": result.Created,
	})
}

// CheckOut closes today's open entry, attaching duration and sales stats.
func CheckOut(c *fiber.Ctx) error {
	var req CheckOutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.CashierID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "cashier_id is required",
		})
	}

	session, err := sessionService.CheckOut(c.Context(), req.CashierID, models.CheckoutReason(req.Reason), req.ReasonDetails)
	if err != nil {
		status := errorStatus(err)
		if status == fiber.StatusInternalServerError {
			slog.Error("Checkout failed", "error", err, "cashierID", req.CashierID)
			return c.Status(status).JSON(fiber.Map{
				"error": "Failed to check out",
			})
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if notifier != nil {
		notifier.Notify(models.NotificationCheckOut, req.CashierID, session.CashierName, session.ID.Hex(), map[string]interface{}{
			"reason": req.Reason,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"session": session,
	})
}

// GetSessionStatus reports whether the cashier has an open entry today.
func GetSessionStatus(c *fiber.Ctx) error {
	cashierID := c.Params("cashierID")
	if cashierID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "cashier_id is required",
		})
	}

	status, err := sessionService.GetStatus(c.Context(), cashierID)
	if err != nil {
		slog.Error("Failed to get session status", "error", err, "cashierID", cashierID)
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error": "Failed to get session status",
		})
	}

	return c.JSON(status)
}

// GetSessionHistory returns paginated DailySession documents, newest first.
func GetSessionHistory(c *fiber.Ctx) error {
	cashierID := c.Params("cashierID")
	if cashierID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "cashier_id is required",
		})
	}

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)

	history, err := sessionService.GetHistory(c.Context(), cashierID, page, limit)
	if err != nil {
		slog.Error("Failed to get session history", "error", err, "cashierID", cashierID)
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error": "Failed to get session history",
		})
	}

	return c.JSON(fiber.Map{
		"sessions":     history.Sessions,
		"total":        history.Total,
		"total_pages":  history.TotalPages,
		"current_page": history.CurrentPage,
	})
}
