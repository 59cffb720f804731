package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CheckoutReason classifies why a cashier session entry was closed.
type CheckoutReason string

const (
	ReasonManual         CheckoutReason = "manual"
	ReasonTabSwitch      CheckoutReason = "tab-switch"
	ReasonWindowMinimize CheckoutReason = "window-minimize"
	ReasonBrowserClose   CheckoutReason = "browser-close"
	ReasonLogout         CheckoutReason = "logout"
	ReasonSystemTimeout  CheckoutReason = "system-timeout"
	ReasonEndOfShift     CheckoutReason = "end-of-shift"
	ReasonBreak          CheckoutReason = "break"
	ReasonEmergency      CheckoutReason = "emergency"
	ReasonSystemIssue    CheckoutReason = "system-issue"
	ReasonOther          CheckoutReason = "other"
)

// IsValidCheckoutReason checks if a checkout reason is one of the known values.
func IsValidCheckoutReason(reason string) bool {
	validReasons := []CheckoutReason{
		ReasonManual,
		ReasonTabSwitch,
		ReasonWindowMinimize,
		ReasonBrowserClose,
		ReasonLogout,
		ReasonSystemTimeout,
		ReasonEndOfShift,
		ReasonBreak,
		ReasonEmergency,
		ReasonSystemIssue,
		ReasonOther,
	}

	for _, validReason := range validReasons {
		if CheckoutReason(reason) == validReason {
			return true
		}
	}
	return false
}

// SessionEntry is one check-in/check-out pair within a DailySession.
// It is created by check-in and closed exactly once by check-out; while open,
// only the activity and screen-share fields may change.
type SessionEntry struct {
	CheckInTime           time.Time      `bson:"check_in_time" json:"check_in_time"`
	CheckOutTime          *time.Time     `bson:"check_out_time,omitempty" json:"check_out_time,omitempty"`
	CheckoutReason        CheckoutReason `bson:"checkout_reason,omitempty" json:"checkout_reason,omitempty"`
	CheckoutReasonDetails string         `bson:"checkout_reason_details,omitempty" json:"checkout_reason_details,omitempty"`
	DurationMinutes       float64        `bson:"duration_minutes" json:"duration_minutes"`
	SalesDuringSession    float64        `bson:"sales_during_session" json:"sales_during_session"`
	TransactionsDuring    int            `bson:"transactions_during_session" json:"transactions_during_session"`

	ScreenShareEnabled    bool       `bson:"screen_share_enabled" json:"screen_share_enabled"`
	PeerID                string     `bson:"peer_id,omitempty" json:"peer_id,omitempty"`
	LastScreenShareUpdate *time.Time `bson:"last_screen_share_update,omitempty" json:"last_screen_share_update,omitempty"`

	LastActivityTime time.Time `bson:"last_activity_time" json:"last_activity_time"`
}

// IsOpen reports whether the entry has not been checked out yet.
func (e *SessionEntry) IsOpen() bool {
	return e.CheckOutTime == nil
}

// DailySession is the persisted attendance record for one cashier on one
// calendar date. (cashier_id, session_date) is unique; re-checking-in on the
// same day appends a new entry to the existing document.
type DailySession struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CashierID   string             `bson:"cashier_id" json:"cashier_id"`
	CashierName string             `bson:"cashier_name" json:"cashier_name"`
	SessionDate string             `bson:"session_date" json:"session_date"` // YYYY-MM-DD in the deployment timezone
	Entries     []SessionEntry     `bson:"entries" json:"entries"`

	CurrentlyActive  bool `bson:"currently_active" json:"currently_active"`
	ActiveEntryIndex int  `bson:"active_entry_index" json:"active_entry_index"` // -1 when no entry is open

	// Rollups derived from Entries; recomputed on every persist, never patched
	TotalCheckIns        int            `bson:"total_check_ins" json:"total_check_ins"`
	TotalCheckOuts       int            `bson:"total_check_outs" json:"total_check_outs"`
	TotalDuration        float64        `bson:"total_duration" json:"total_duration"` // minutes
	TotalSales           float64        `bson:"total_sales" json:"total_sales"`
	TotalTransactions    int            `bson:"total_transactions" json:"total_transactions"`
	CheckoutReasonCounts map[string]int `bson:"checkout_reason_counts,omitempty" json:"checkout_reason_counts,omitempty"`

	AdminReviewed   bool       `bson:"admin_reviewed" json:"admin_reviewed"`
	AdminReviewedAt *time.Time `bson:"admin_reviewed_at,omitempty" json:"admin_reviewed_at,omitempty"`
	AdminReviewedBy string     `bson:"admin_reviewed_by,omitempty" json:"admin_reviewed_by,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// OpenEntry returns the currently open entry and its index, or nil and -1.
func (d *DailySession) OpenEntry() (*SessionEntry, int) {
	for i := len(d.Entries) - 1; i >= 0; i-- {
		if d.Entries[i].IsOpen() {
			return &d.Entries[i], i
		}
	}
	return nil, -1
}

// SessionRollups holds the aggregates derived from a DailySession's entries.
type SessionRollups struct {
	TotalCheckIns        int
	TotalCheckOuts       int
	TotalDuration        float64
	TotalSales           float64
	TotalTransactions    int
	CheckoutReasonCounts map[string]int
	CurrentlyActive      bool
	ActiveEntryIndex     int
}

// ComputeRollups derives the daily aggregates from an entries sequence.
// The derivation is idempotent and order-independent; it is applied before
// every persist instead of patching counters incrementally, so the rollups
// can always be rebuilt from the entries alone.
func ComputeRollups(entries []SessionEntry) SessionRollups {
	rollups := SessionRollups{
		CheckoutReasonCounts: make(map[string]int),
		ActiveEntryIndex:     -1,
	}

	for i, entry := range entries {
		rollups.TotalCheckIns++
		if entry.IsOpen() {
			rollups.CurrentlyActive = true
			rollups.ActiveEntryIndex = i
			continue
		}
		rollups.TotalCheckOuts++
		rollups.TotalDuration += entry.DurationMinutes
		rollups.TotalSales += entry.SalesDuringSession
		rollups.TotalTransactions += entry.TransactionsDuring
		if entry.CheckoutReason != "" {
			rollups.CheckoutReasonCounts[string(entry.CheckoutReason)]++
		}
	}

	return rollups
}

// ApplyRollups writes derived aggregates back onto the document.
func (d *DailySession) ApplyRollups() {
	rollups := ComputeRollups(d.Entries)
	d.TotalCheckIns = rollups.TotalCheckIns
	d.TotalCheckOuts = rollups.TotalCheckOuts
	d.TotalDuration = rollups.TotalDuration
	d.TotalSales = rollups.TotalSales
	d.TotalTransactions = rollups.TotalTransactions
	d.CheckoutReasonCounts = rollups.CheckoutReasonCounts
	d.CurrentlyActive = rollups.CurrentlyActive
	d.ActiveEntryIndex = rollups.ActiveEntryIndex
}

// SessionDateString renders a timestamp as the calendar date key used for
// the (cashier_id, session_date) partition, in the given zone.
func SessionDateString(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
