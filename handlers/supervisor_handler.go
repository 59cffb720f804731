package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"pos-monitor/models"
	"pos-monitor/services"
)

// GetLiveCashiers merges hub presence with today's persisted sessions for the
// supervisor dashboard. Presence is process-local and best-effort; the
// persisted DailySession stays authoritative for attendance.
func GetLiveCashiers(c *fiber.Ctx) error {
	presences := hub.CashierList()

	sessions, err := sessionService.DailyReport(c.Context(), "")
	if err != nil {
		slog.Error("Failed to load today's sessions", "error", err)
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error": "Failed to load cashier overview",
		})
	}

	sessionsByCashier := make(map[string]models.DailySession, len(sessions))
	for _, session := range sessions {
		sessionsByCashier[session.CashierID] = session
	}

	type liveCashier struct {
		Presence services.CashierPresence `json:"presence"`
		Session  *models.DailySession     `json:"session,omitempty"`
	}

	list := make([]liveCashier, 0, len(presences))
	seen := make(map[string]bool, len(presences))
	for _, presence := range presences {
		entry := liveCashier{Presence: presence}
		if session, ok := sessionsByCashier[presence.CashierID]; ok {
			s := session
			entry.Session = &s
		}
		seen[presence.CashierID] = true
		list = append(list, entry)
	}

	// Cashiers with a session today but no open socket still show up,
	// marked disconnected.
	for _, session := range sessions {
		if seen[session.CashierID] {
			continue
		}
		s := session
		list = append(list, liveCashier{
			Presence: services.CashierPresence{
				CashierID: session.CashierID,
				Name:      session.CashierName,
				State:     services.StateDisconnected,
			},
			Session: &s,
		})
	}

	return c.JSON(fiber.Map{
		"cashiers":    list,
		"supervisors": hub.SupervisorCount(),
	})
}

// GetDailyReport returns every DailySession for a date with summary totals.
func GetDailyReport(c *fiber.Ctx) error {
	date := c.Query("date")

	sessions, err := sessionService.DailyReport(c.Context(), date)
	if err != nil {
		slog.Error("Failed to load daily report", "error", err, "date", date)
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error": "Failed to load daily report",
		})
	}

	var totalSales float64
	var totalTransactions int
	var totalDuration float64
	for _, session := range sessions {
		totalSales += session.TotalSales
		totalTransactions += session.TotalTransactions
		totalDuration += session.TotalDuration
	}

	return c.JSON(fiber.Map{
		"sessions": sessions,
		"summary": fiber.Map{
			"cashiers":           len(sessions),
			"total_sales":        totalSales,
			"total_transactions": totalTransactions,
			"total_duration":     totalDuration,
		},
	})
}

type ReviewRequest struct {
	Date string `json:"date,omitempty"`
}

// ReviewSession marks a cashier's DailySession as reviewed by the caller.
func ReviewSession(c *fiber.Ctx) error {
	cashierID := c.Params("cashierID")
	if cashierID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "cashier_id is required",
		})
	}

	var req ReviewRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	reviewedBy, _ := c.Locals("user_id").(string)

	if err := sessionService.MarkReviewed(c.Context(), cashierID, req.Date, reviewedBy); err != nil {
		status := errorStatus(err)
		if status == fiber.StatusInternalServerError {
			slog.Error("Failed to mark session reviewed", "error", err, "cashierID", cashierID)
			return c.Status(status).JSON(fiber.Map{
				"error": "Failed to mark session reviewed",
			})
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Session marked as reviewed",
	})
}

type ForceCheckoutRequest struct {
	CashierID     string `json:"cashier_id"`
	Reason        string `json:"reason,omitempty"`
	ReasonDetails string `json:"reason_details,omitempty"`
}

// ForceCheckout closes a cashier's open entry on a supervisor's authority.
func ForceCheckout(c *fiber.Ctx) error {
	var req ForceCheckoutRequest
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

	reason := models.CheckoutReason(req.Reason)
	if reason == "" {
		reason = models.ReasonEndOfShift
	}

	session, err := sessionService.CheckOut(c.Context(), req.CashierID, reason, req.ReasonDetails)
	if err != nil {
		status := errorStatus(err)
		if status == fiber.StatusInternalServerError {
			slog.Error("Force checkout failed", "error", err, "cashierID", req.CashierID)
			return c.Status(status).JSON(fiber.Map{
				"error": "Failed to force checkout",
			})
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	supervisorID, _ := c.Locals("user_id").(string)
	if notifier != nil {
		notifier.Notify(models.NotificationForceCheckout, req.CashierID, session.CashierName, session.ID.Hex(), map[string]interface{}{
			"forced_by": supervisorID,
			"reason":    string(reason),
		})
	}
	hub.BroadcastToSupervisors("cashier-checked-out", fiber.Map{
		"cashier_id": req.CashierID,
		"forced_by":  supervisorID,
	})

	slog.Info("Force checkout", "cashierID", req.CashierID, "supervisorID", supervisorID)

	return c.JSON(fiber.Map{
		"session": session,
	})
}

// GetNotifications lists recent persisted domain events, newest first.
func GetNotifications(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	notifications, err := services.RecentNotifications(c.Context(), limit)
	if err != nil {
		slog.Error("Failed to load notifications", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load notifications",
		})
	}

	return c.JSON(fiber.Map{
		"notifications": notifications,
	})
}

// MarkNotificationRead flags one notification as read.
func MarkNotificationRead(c *fiber.Ctx) error {
	id := c.Params("id")

	if err := services.MarkNotificationRead(c.Context(), id); err != nil {
		status := errorStatus(err)
		if status == fiber.StatusInternalServerError {
			slog.Error("Failed to mark notification read", "error", err, "id", id)
			return c.Status(status).JSON(fiber.Map{
				"error": "Failed to mark notification read",
			})
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Notification marked as read",
	})
}
