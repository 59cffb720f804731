package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pos-monitor/models"
)

// CashierSessionService enforces the one-open-entry-per-cashier-per-day rule
// and computes checkout statistics from the sales store.
type CashierSessionService struct {
	store     SessionStore
	sales     SalesStore
	directory Directory
	location  *time.Location

	now func() time.Time
}

func NewCashierSessionService(store SessionStore, sales SalesStore, directory Directory, location *time.Location) *CashierSessionService {
	return &CashierSessionService{
		store:     store,
		sales:     sales,
		directory: directory,
		location:  location,
		now:       time.Now,
	}
}

// CheckInResult reports the affected day and whether a new entry was created.
// Created is false when an open entry already existed; check-in is idempotent
// and a repeat call returns the existing entry rather than an error.
type CheckInResult struct {
	Session *models.DailySession
	Entry   *models.SessionEntry
	Created bool
}

// CheckIn opens a session entry for the cashier on today's date. If the
// cashier already has an open entry it is returned unchanged.
func (s *CashierSessionService) CheckIn(ctx context.Context, cashierID string) (*CheckInResult, error) {
	if cashierID == "" {
		return nil, fmt.Errorf("%w: cashier id is required", ErrValidation)
	}

	user, err := s.directory.FindByID(ctx, cashierID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sessionDate := models.SessionDateString(now, s.location)

	session, err := s.store.FindByCashierAndDate(ctx, cashierID, sessionDate)
	if err != nil {
		return nil, err
	}

	if session == nil {
		session = &models.DailySession{
			CashierID:   cashierID,
			CashierName: user.DisplayName(),
			SessionDate: sessionDate,
			Entries:     []models.SessionEntry{newSessionEntry(now)},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		session.ApplyRollups()

		if err := s.store.CreateDay(ctx, session); err != nil {
			// A concurrent check-in may have created the document first;
			// fall through to the append path via a re-read.
			existing, findErr := s.store.FindByCashierAndDate(ctx, cashierID, sessionDate)
			if findErr != nil || existing == nil {
				return nil, err
			}
			session = existing
		} else {
			slog.Info("Cashier checked in", "cashierID", cashierID, "sessionDate", sessionDate)
			return &CheckInResult{Session: session, Entry: &session.Entries[0], Created: true}, nil
		}
	}

	if entry, _ := session.OpenEntry(); entry != nil {
		slog.Info("Cashier already checked in", "cashierID", cashierID, "sessionDate", sessionDate)
		return &CheckInResult{Session: session, Entry: entry, Created: false}, nil
	}

	entry := newSessionEntry(now)
	session.Entries = append(session.Entries, entry)
	session.ApplyRollups()
	session.UpdatedAt = now

	rollups := models.ComputeRollups(session.Entries)
	if err := s.store.AppendEntry(ctx, session.ID, entry, rollups, now); err != nil {
		if err == ErrNotFound {
			// Lost the race to another check-in; return the winner's open entry.
			current, findErr := s.store.FindByCashierAndDate(ctx, cashierID, sessionDate)
			if findErr == nil && current != nil {
				if open, _ := current.OpenEntry(); open != nil {
					return &CheckInResult{Session: current, Entry: open, Created: false}, nil
				}
			}
		}
		return nil, err
	}

	slog.Info("Cashier checked in", "cashierID", cashierID, "sessionDate", sessionDate, "entryCount", len(session.Entries))

	openEntry, _ := session.OpenEntry()
	return &CheckInResult{Session: session, Entry: openEntry, Created: true}, nil
}

// CheckOut closes the open entry for today, computing duration and sales
// statistics over [checkInTime, checkOutTime]. Fails with ErrNotFound when no
// entry is open. A sales-store failure fails the whole checkout so a closed
// entry always carries consistent stats.
func (s *CashierSessionService) CheckOut(ctx context.Context, cashierID string, reason models.CheckoutReason, reasonDetails string) (*models.DailySession, error) {
	if cashierID == "" {
		return nil, fmt.Errorf("%w: cashier id is required", ErrValidation)
	}
	if reason == "" {
		reason = models.ReasonManual
	}
	if !models.IsValidCheckoutReason(string(reason)) {
		return nil, fmt.Errorf("%w: unknown checkout reason %q", ErrValidation, reason)
	}

	now := s.now()
	sessionDate := models.SessionDateString(now, s.location)

	session, err := s.store.FindByCashierAndDate(ctx, cashierID, sessionDate)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: no active session for cashier %s", ErrNotFound, cashierID)
	}

	openEntry, entryIndex := session.OpenEntry()
	if openEntry == nil {
		return nil, fmt.Errorf("%w: no active session for cashier %s", ErrNotFound, cashierID)
	}

	totalSales, transactionCount, err := s.sales.SalesForWindow(ctx, cashierID, openEntry.CheckInTime, now)
	if err != nil {
		return nil, fmt.Errorf("failed to compute session sales: %w", err)
	}

	closed := *openEntry
	checkOutTime := now
	closed.CheckOutTime = &checkOutTime
	closed.CheckoutReason = reason
	closed.CheckoutReasonDetails = reasonDetails
	closed.DurationMinutes = checkOutTime.Sub(closed.CheckInTime).Minutes()
	closed.SalesDuringSession = totalSales
	closed.TransactionsDuring = transactionCount
	closed.LastActivityTime = now

	session.Entries[entryIndex] = closed
	session.ApplyRollups()
	session.UpdatedAt = now

	rollups := models.ComputeRollups(session.Entries)
	if err := s.store.CloseEntry(ctx, session.ID, entryIndex, closed, rollups, now); err != nil {
		if err == ErrNotFound {
			return nil, fmt.Errorf("%w: no active session for cashier %s", ErrNotFound, cashierID)
		}
		return nil, err
	}

	slog.Info("Cashier checked out",
		"cashierID", cashierID,
		"sessionDate", sessionDate,
		"reason", reason,
		"durationMinutes", closed.DurationMinutes,
		"sales", totalSales,
		"transactions", transactionCount)

	return session, nil
}

// SessionStatus is the response shape for status queries.
type SessionStatus struct {
	HasActiveSession bool                 `json:"has_active_session"`
	Session          *models.DailySession `json:"session,omitempty"`
	ActiveEntry      *models.SessionEntry `json:"active_entry,omitempty"`
}

// GetStatus reports whether the cashier has an open entry today.
func (s *CashierSessionService) GetStatus(ctx context.Context, cashierID string) (*SessionStatus, error) {
	if cashierID == "" {
		return nil, fmt.Errorf("%w: cashier id is required", ErrValidation)
	}

	sessionDate := models.SessionDateString(s.now(), s.location)
	session, err := s.store.FindByCashierAndDate(ctx, cashierID, sessionDate)
	if err != nil {
		return nil, err
	}

	if session == nil {
		return &SessionStatus{HasActiveSession: false}, nil
	}

	openEntry, _ := session.OpenEntry()
	return &SessionStatus{
		HasActiveSession: openEntry != nil,
		Session:          session,
		ActiveEntry:      openEntry,
	}, nil
}

// SessionHistory is a page of DailySession documents, most recent first.
type SessionHistory struct {
	Sessions    []models.DailySession `json:"sessions"`
	Total       int64                 `json:"total"`
	TotalPages  int                   `json:"total_pages"`
	CurrentPage int                   `json:"current_page"`
}

// GetHistory returns paginated DailySession documents for a cashier.
func (s *CashierSessionService) GetHistory(ctx context.Context, cashierID string, page, limit int) (*SessionHistory, error) {
	if cashierID == "" {
		return nil, fmt.Errorf("%w: cashier id is required", ErrValidation)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	skip := (page - 1) * limit

	sessions, totalCount, err := s.store.FindByCashier(ctx, cashierID, limit, skip)
	if err != nil {
		return nil, err
	}

	totalPages := (int(totalCount) + limit - 1) / limit

	return &SessionHistory{
		Sessions:    sessions,
		Total:       totalCount,
		TotalPages:  totalPages,
		CurrentPage: page,
	}, nil
}

// TouchActivity bumps last_activity_time on the cashier's open entry. Missing
// sessions are ignored; activity tracking is best-effort.
func (s *CashierSessionService) TouchActivity(ctx context.Context, cashierID string) error {
	now := s.now()
	sessionDate := models.SessionDateString(now, s.location)

	session, err := s.store.FindByCashierAndDate(ctx, cashierID, sessionDate)
	if err != nil || session == nil {
		return err
	}

	if _, entryIndex := session.OpenEntry(); entryIndex >= 0 {
		return s.store.UpdateEntryActivity(ctx, session.ID, entryIndex, now)
	}
	return nil
}

// UpdateScreenShare records the screen-share state on the open entry.
func (s *CashierSessionService) UpdateScreenShare(ctx context.Context, cashierID string, enabled bool, peerID string) error {
	now := s.now()
	sessionDate := models.SessionDateString(now, s.location)

	session, err := s.store.FindByCashierAndDate(ctx, cashierID, sessionDate)
	if err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("%w: no session for cashier %s", ErrNotFound, cashierID)
	}

	if _, entryIndex := session.OpenEntry(); entryIndex >= 0 {
		return s.store.UpdateEntryScreenShare(ctx, session.ID, entryIndex, enabled, peerID, now)
	}
	return fmt.Errorf("%w: no active session for cashier %s", ErrNotFound, cashierID)
}

// DailyReport returns every DailySession for a calendar date.
func (s *CashierSessionService) DailyReport(ctx context.Context, sessionDate string) ([]models.DailySession, error) {
	if sessionDate == "" {
		sessionDate = models.SessionDateString(s.now(), s.location)
	}
	return s.store.FindByDate(ctx, sessionDate)
}

// MarkReviewed flags today's (or the given date's) DailySession as reviewed
// by a supervisor.
func (s *CashierSessionService) MarkReviewed(ctx context.Context, cashierID, sessionDate, reviewedBy string) error {
	if cashierID == "" {
		return fmt.Errorf("%w: cashier id is required", ErrValidation)
	}
	if sessionDate == "" {
		sessionDate = models.SessionDateString(s.now(), s.location)
	}

	err := s.store.MarkReviewed(ctx, cashierID, sessionDate, reviewedBy, s.now())
	if err == ErrNotFound {
		return fmt.Errorf("%w: no session for cashier %s on %s", ErrNotFound, cashierID, sessionDate)
	}
	return err
}

func newSessionEntry(now time.Time) models.SessionEntry {
	return models.SessionEntry{
		CheckInTime:      now,
		LastActivityTime: now,
	}
}
