package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"pos-monitor/models"
)

// MemorySessionStore is an in-memory SessionStore for tests and local
// development without a MongoDB instance. It enforces the same guards as the
// Mongo implementation.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.DailySession // cashierID|sessionDate
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*models.DailySession)}
}

func dayKey(cashierID, sessionDate string) string {
	return cashierID + "|" + sessionDate
}

func (s *MemorySessionStore) FindByCashierAndDate(_ context.Context, cashierID, sessionDate string) (*models.DailySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[dayKey(cashierID, sessionDate)]
	if !exists {
		return nil, nil
	}
	copied := cloneSession(session)
	return &copied, nil
}

func (s *MemorySessionStore) CreateDay(_ context.Context, session *models.DailySession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dayKey(session.CashierID, session.SessionDate)
	if _, exists := s.sessions[key]; exists {
		return fmt.Errorf("duplicate daily session for %s", key)
	}
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	stored := cloneSession(session)
	s.sessions[key] = &stored
	return nil
}

func (s *MemorySessionStore) AppendEntry(_ context.Context, id primitive.ObjectID, entry models.SessionEntry, rollups models.SessionRollups, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.findByIDLocked(id)
	if session == nil || session.CurrentlyActive {
		return ErrNotFound
	}

	session.Entries = append(session.Entries, entry)
	applyRollups(session, rollups, updatedAt)
	return nil
}

func (s *MemorySessionStore) CloseEntry(_ context.Context, id primitive.ObjectID, entryIndex int, entry models.SessionEntry, rollups models.SessionRollups, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.findByIDLocked(id)
	if session == nil || entryIndex < 0 || entryIndex >= len(session.Entries) {
		return ErrNotFound
	}
	if !session.Entries[entryIndex].IsOpen() {
		return ErrNotFound
	}

	session.Entries[entryIndex] = entry
	applyRollups(session, rollups, updatedAt)
	return nil
}

func (s *MemorySessionStore) UpdateEntryActivity(_ context.Context, id primitive.ObjectID, entryIndex int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.findByIDLocked(id)
	if session == nil || entryIndex < 0 || entryIndex >= len(session.Entries) {
		return nil
	}
	if session.Entries[entryIndex].IsOpen() {
		session.Entries[entryIndex].LastActivityTime = at
		session.UpdatedAt = at
	}
	return nil
}

func (s *MemorySessionStore) UpdateEntryScreenShare(_ context.Context, id primitive.ObjectID, entryIndex int, enabled bool, peerID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.findByIDLocked(id)
	if session == nil || entryIndex < 0 || entryIndex >= len(session.Entries) {
		return nil
	}
	if session.Entries[entryIndex].IsOpen() {
		session.Entries[entryIndex].ScreenShareEnabled = enabled
		session.Entries[entryIndex].PeerID = peerID
		shareUpdate := at
		session.Entries[entryIndex].LastScreenShareUpdate = &shareUpdate
		session.UpdatedAt = at
	}
	return nil
}

func (s *MemorySessionStore) FindByCashier(_ context.Context, cashierID string, limit, skip int) ([]models.DailySession, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []models.DailySession
	for _, session := range s.sessions {
		if session.CashierID == cashierID {
			all = append(all, cloneSession(session))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].SessionDate > all[j].SessionDate
	})

	total := int64(len(all))
	if skip >= len(all) {
		return []models.DailySession{}, total, nil
	}
	all = all[skip:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (s *MemorySessionStore) FindByDate(_ context.Context, sessionDate string) ([]models.DailySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.DailySession
	for _, session := range s.sessions {
		if session.SessionDate == sessionDate {
			result = append(result, cloneSession(session))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CashierName < result[j].CashierName
	})
	return result, nil
}

func (s *MemorySessionStore) MarkReviewed(_ context.Context, cashierID, sessionDate, reviewedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[dayKey(cashierID, sessionDate)]
	if !exists {
		return ErrNotFound
	}
	session.AdminReviewed = true
	reviewedAt := at
	session.AdminReviewedAt = &reviewedAt
	session.AdminReviewedBy = reviewedBy
	session.UpdatedAt = at
	return nil
}

func (s *MemorySessionStore) findByIDLocked(id primitive.ObjectID) *models.DailySession {
	for _, session := range s.sessions {
		if session.ID == id {
			return session
		}
	}
	return nil
}

func applyRollups(session *models.DailySession, rollups models.SessionRollups, updatedAt time.Time) {
	session.CurrentlyActive = rollups.CurrentlyActive
	session.ActiveEntryIndex = rollups.ActiveEntryIndex
	session.TotalCheckIns = rollups.TotalCheckIns
	session.TotalCheckOuts = rollups.TotalCheckOuts
	session.TotalDuration = rollups.TotalDuration
	session.TotalSales = rollups.TotalSales
	session.TotalTransactions = rollups.TotalTransactions
	session.CheckoutReasonCounts = rollups.CheckoutReasonCounts
	session.UpdatedAt = updatedAt
}

func cloneSession(session *models.DailySession) models.DailySession {
	copied := *session
	copied.Entries = append([]models.SessionEntry(nil), session.Entries...)
	if session.CheckoutReasonCounts != nil {
		counts := make(map[string]int, len(session.CheckoutReasonCounts))
		for reason, count := range session.CheckoutReasonCounts {
			counts[reason] = count
		}
		copied.CheckoutReasonCounts = counts
	}
	return copied
}

// MemorySalesStore is an in-memory SalesStore.
type MemorySalesStore struct {
	mu     sync.RWMutex
	orders []models.Order
}

func NewMemorySalesStore() *MemorySalesStore {
	return &MemorySalesStore{}
}

// AddOrder records an order for subsequent window queries.
func (s *MemorySalesStore) AddOrder(order models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, order)
}

func (s *MemorySalesStore) SalesForWindow(_ context.Context, cashierID string, from, to time.Time) (float64, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	count := 0
	for _, order := range s.orders {
		if order.CashierID != cashierID {
			continue
		}
		if order.CreatedAt.Before(from) || order.CreatedAt.After(to) {
			continue
		}
		total += order.Total
		count++
	}
	return total, count, nil
}

// MemoryDirectory is an in-memory Directory.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]models.User)}
}

// AddUser registers a user in the directory.
func (d *MemoryDirectory) AddUser(user models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.UserID] = user
}

func (d *MemoryDirectory) FindByID(_ context.Context, userID string) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, exists := d.users[userID]
	if !exists || !user.IsActive {
		return nil, ErrNotFound
	}
	return &user, nil
}
