package models

import (
	"testing"
	"time"
)

func entryAt(checkIn time.Time, minutes float64, sales float64, transactions int, reason CheckoutReason) SessionEntry {
	checkOut := checkIn.Add(time.Duration(minutes * float64(time.Minute)))
	return SessionEntry{
		CheckInTime:        checkIn,
		CheckOutTime:       &checkOut,
		CheckoutReason:     reason,
		DurationMinutes:    minutes,
		SalesDuringSession: sales,
		TransactionsDuring: transactions,
	}
}

func TestComputeRollupsEmpty(t *testing.T) {
	rollups := ComputeRollups(nil)
	if rollups.TotalCheckIns != 0 || rollups.TotalCheckOuts != 0 {
		t.Fatalf("expected zero rollups, got %+v", rollups)
	}
	if rollups.CurrentlyActive {
		t.Fatalf("empty entries must not be active")
	}
	if rollups.ActiveEntryIndex != -1 {
		t.Fatalf("expected active index -1, got %d", rollups.ActiveEntryIndex)
	}
}

func TestComputeRollupsMixedEntries(t *testing.T) {
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	entries := []SessionEntry{
		entryAt(base, 120, 2500, 12, ReasonBreak),
		entryAt(base.Add(3*time.Hour), 90, 1800, 7, ReasonManual),
		{CheckInTime: base.Add(6 * time.Hour)}, // still open
	}

	rollups := ComputeRollups(entries)

	if rollups.TotalCheckIns != 3 {
		t.Fatalf("expected 3 check-ins, got %d", rollups.TotalCheckIns)
	}
	if rollups.TotalCheckOuts != 2 {
		t.Fatalf("expected 2 check-outs, got %d", rollups.TotalCheckOuts)
	}
	if rollups.TotalDuration != 210 {
		t.Fatalf("expected 210 minutes, got %v", rollups.TotalDuration)
	}
	if rollups.TotalSales != 4300 {
		t.Fatalf("expected 4300 sales, got %v", rollups.TotalSales)
	}
	if rollups.TotalTransactions != 19 {
		t.Fatalf("expected 19 transactions, got %d", rollups.TotalTransactions)
	}
	if !rollups.CurrentlyActive || rollups.ActiveEntryIndex != 2 {
		t.Fatalf("expected open entry at index 2, got active=%v index=%d", rollups.CurrentlyActive, rollups.ActiveEntryIndex)
	}
	if rollups.CheckoutReasonCounts[string(ReasonBreak)] != 1 || rollups.CheckoutReasonCounts[string(ReasonManual)] != 1 {
		t.Fatalf("unexpected reason counts: %v", rollups.CheckoutReasonCounts)
	}
}

func TestComputeRollupsIdempotent(t *testing.T) {
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	entries := []SessionEntry{
		entryAt(base, 60, 500, 1, ReasonManual),
		entryAt(base.Add(2*time.Hour), 30, 0, 0, ReasonBreak),
	}

	first := ComputeRollups(entries)
	second := ComputeRollups(entries)

	if first.TotalDuration != second.TotalDuration ||
		first.TotalSales != second.TotalSales ||
		first.TotalCheckOuts != second.TotalCheckOuts {
		t.Fatalf("rollups must be stable across recomputes: %+v vs %+v", first, second)
	}
}

func TestApplyRollupsMatchesEntries(t *testing.T) {
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	session := DailySession{
		CashierID: "c-1",
		Entries: []SessionEntry{
			entryAt(base, 45, 900, 4, ReasonEndOfShift),
			{CheckInTime: base.Add(2 * time.Hour)},
		},
	}

	session.ApplyRollups()

	if session.TotalCheckIns != len(session.Entries) {
		t.Fatalf("total check-ins %d must equal entry count %d", session.TotalCheckIns, len(session.Entries))
	}
	if session.TotalCheckOuts != 1 {
		t.Fatalf("expected 1 check-out, got %d", session.TotalCheckOuts)
	}
	if !session.CurrentlyActive || session.ActiveEntryIndex != 1 {
		t.Fatalf("expected open entry at index 1")
	}
}

func TestOpenEntryReturnsLatestOpen(t *testing.T) {
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	session := DailySession{
		Entries: []SessionEntry{
			entryAt(base, 60, 0, 0, ReasonManual),
			{CheckInTime: base.Add(2 * time.Hour)},
		},
	}

	entry, index := session.OpenEntry()
	if entry == nil || index != 1 {
		t.Fatalf("expected open entry at index 1, got index %d", index)
	}

	session.Entries = []SessionEntry{entryAt(base, 60, 0, 0, ReasonManual)}
	if entry, index := session.OpenEntry(); entry != nil || index != -1 {
		t.Fatalf("expected no open entry, got index %d", index)
	}
}

func TestIsValidCheckoutReason(t *testing.T) {
	valid := []string{
		"manual", "tab-switch", "window-minimize", "browser-close", "logout",
		"system-timeout", "end-of-shift", "break", "emergency", "system-issue", "other",
	}
	for _, reason := range valid {
		if !IsValidCheckoutReason(reason) {
			t.Fatalf("expected reason %s to be valid", reason)
		}
	}
	if IsValidCheckoutReason("coffee") {
		t.Fatalf("expected unknown reason to be invalid")
	}
	if IsValidCheckoutReason("") {
		t.Fatalf("expected empty reason to be invalid")
	}
}

func TestSessionDateStringUsesLocation(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// 23:30 UTC on March 10 is already March 11 in UTC+7
	instant := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)

	if got := SessionDateString(instant, time.UTC); got != "2025-03-10" {
		t.Fatalf("expected 2025-03-10 in UTC, got %s", got)
	}
	if got := SessionDateString(instant, jakarta); got != "2025-03-11" {
		t.Fatalf("expected 2025-03-11 in Asia/Jakarta, got %s", got)
	}
}
