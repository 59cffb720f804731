package services

import (
	"testing"
	"time"

	"pos-monitor/models"
)

func TestSweepLongSessionsFlagsOnlyOverdueCashiers(t *testing.T) {
	notifier := &recordingNotifier{}
	hub := NewHub(notifier)

	overdue := newCashierConn("c-1", "Rina")
	fresh := newCashierConn("c-2", "Budi")
	idle := newCashierConn("c-3", "Sari")

	hub.Connect(overdue)
	hub.Connect(fresh)
	hub.Connect(idle)
	hub.CashierCheckedIn(overdue)
	hub.CashierCheckedIn(fresh)

	hub.mu.Lock()
	hub.cashiers["c-1"].CheckedInAt = time.Now().Add(-13 * time.Hour)
	hub.mu.Unlock()

	hub.SweepLongSessions(12 * time.Hour)

	if len(notifier.events) != 1 {
		t.Fatalf("expected exactly one long-session notification, got %d", len(notifier.events))
	}
	if notifier.events[0] != models.NotificationLongSession {
		t.Fatalf("expected long-session notification, got %s", notifier.events[0])
	}
}

func TestSweepLongSessionsWithoutNotifierIsNoOp(t *testing.T) {
	hub := NewHub(nil)
	cashier := newCashierConn("c-1", "Rina")

	hub.Connect(cashier)
	hub.CashierCheckedIn(cashier)
	hub.mu.Lock()
	hub.cashiers["c-1"].CheckedInAt = time.Now().Add(-24 * time.Hour)
	hub.mu.Unlock()

	hub.SweepLongSessions(12 * time.Hour)
}
