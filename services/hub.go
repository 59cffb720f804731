package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pos-monitor/models"
)

// Hub errors
var (
	ErrConnectionBufferFull = errors.New("connection buffer full")
	ErrIllegalTransition    = errors.New("illegal cashier state transition")
	ErrShareUnavailable     = errors.New("screen share unavailable")
)

// CashierState is the hub-local state of one connected cashier. Sharing is
// only reachable from CheckedIn; any state can fall back to Disconnected.
type CashierState string

const (
	StateDisconnected  CashierState = "disconnected"
	StateConnectedIdle CashierState = "connected-idle"
	StateCheckedIn     CashierState = "checked-in"
	StateSharing       CashierState = "sharing"
)

// legalTransitions maps each state to the states it may move to, not counting
// the always-allowed fall to Disconnected.
var legalTransitions = map[CashierState][]CashierState{
	StateDisconnected:  {StateConnectedIdle},
	StateConnectedIdle: {StateCheckedIn},
	StateCheckedIn:     {StateConnectedIdle, StateSharing},
	StateSharing:       {StateCheckedIn},
}

func transitionAllowed(from, to CashierState) bool {
	if to == StateDisconnected {
		return true
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ClientConn is one authenticated socket. The hub only ever touches the Send
// channel; the websocket pump goroutine owns the underlying connection.
type ClientConn struct {
	SocketID string
	UserID   string
	UserName string
	Role     models.UserRole
	Send     chan []byte
}

// TrySend queues a payload for the socket without blocking. Returns
// ErrConnectionBufferFull when the send buffer is full; the payload is
// dropped in that case.
func (c *ClientConn) TrySend(data []byte) error {
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrConnectionBufferFull
	}
}

// EventPayload is the envelope for every hub-to-client event
type EventPayload struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// CashierPresence tracks one connected cashier socket
type CashierPresence struct {
	CashierID   string       `json:"cashier_id"`
	Name        string       `json:"name"`
	SocketID    string       `json:"socket_id"`
	State       CashierState `json:"state"`
	ConnectTime time.Time    `json:"connect_time"`
	CheckedInAt time.Time    `json:"checked_in_at,omitempty"`

	conn *ClientConn
}

// Active reports whether the cashier has announced a check-in.
func (p *CashierPresence) Active() bool {
	return p.State == StateCheckedIn || p.State == StateSharing
}

// HasScreenShare reports whether the cashier is currently sharing.
func (p *CashierPresence) HasScreenShare() bool {
	return p.State == StateSharing
}

// SupervisorPresence tracks one connected supervisor socket
type SupervisorPresence struct {
	SupervisorID string    `json:"supervisor_id"`
	Name         string    `json:"name"`
	SocketID     string    `json:"socket_id"`
	ConnectTime  time.Time `json:"connect_time"`

	conn *ClientConn
}

// ScreenShareSession brokers one cashier's stream to zero or more viewers
type ScreenShareSession struct {
	CashierID     string
	Active        bool
	Viewers       map[string]string // viewerID -> viewerPeerID
	PeerID        string
	Ready         bool
	OwnerSocketID string
	StartedAt     time.Time
}

// ViewRequest is an ephemeral record of a pending or answered view request,
// keyed by (viewerID, cashierID) and garbage-collected when stale.
type ViewRequest struct {
	ViewerID     string
	CashierID    string
	ViewerPeerID string
	RequestedAt  time.Time
}

// ActiveConnection records an answered viewer-cashier pairing
type ActiveConnection struct {
	ViewerID      string
	CashierID     string
	EstablishedAt time.Time
}

// Notifier receives the domain events the hub emits. Persistence and fan-out
// of notifications live behind this boundary.
type Notifier interface {
	Notify(notificationType models.NotificationType, cashierID, cashierName, sessionID string, metadata map[string]interface{})
}

// Hub is the process-wide registry of connected cashier and supervisor
// sockets. All presence state is process-local and rebuilt from live
// connections only; it is never reconciled against the session store, so a
// cashier mid-session across a restart shows as disconnected until the client
// reconnects and re-announces. The persisted DailySession remains the system
// of record for attendance.
type Hub struct {
	mu                sync.RWMutex
	cashiers          map[string]*CashierPresence    // cashierID -> presence
	supervisors       map[string]*SupervisorPresence // supervisorID -> presence
	shares            map[string]*ScreenShareSession // cashierID -> session
	viewRequests      map[string]*ViewRequest        // viewerID:cashierID
	activeConnections map[string]*ActiveConnection   // viewerID:cashierID

	notifier Notifier
}

func NewHub(notifier Notifier) *Hub {
	return &Hub{
		cashiers:          make(map[string]*CashierPresence),
		supervisors:       make(map[string]*SupervisorPresence),
		shares:            make(map[string]*ScreenShareSession),
		viewRequests:      make(map[string]*ViewRequest),
		activeConnections: make(map[string]*ActiveConnection),
		notifier:          notifier,
	}
}

func pairKey(viewerID, cashierID string) string {
	return viewerID + ":" + cashierID
}

// Connect registers an authenticated socket with the hub. A cashier enters
// ConnectedIdle; a reconnect replaces any previous socket for the same user.
func (h *Hub) Connect(conn *ClientConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	switch conn.Role {
	case models.RoleCashier:
		// A reconnect replaces the previous socket. Any share owned by the
		// old socket is torn down here, because the old socket's Disconnect
		// will no longer match a presence and would skip the teardown.
		if prev, exists := h.cashiers[conn.UserID]; exists && prev.SocketID != conn.SocketID {
			wasSharing := prev.HasScreenShare()
			h.teardownShareLocked(conn.UserID)
			h.purgeViewRecordsLocked(conn.UserID)
			if wasSharing && h.notifier != nil {
				h.notifier.Notify(models.NotificationShareDisconnect, conn.UserID, prev.Name, "", nil)
			}
		}
		h.cashiers[conn.UserID] = &CashierPresence{
			CashierID:   conn.UserID,
			Name:        conn.UserName,
			SocketID:    conn.SocketID,
			State:       StateConnectedIdle,
			ConnectTime: now,
			conn:        conn,
		}
		slog.Info("Cashier socket connected",
			"cashierID", conn.UserID,
			"socketID", conn.SocketID,
			"totalCashiers", len(h.cashiers))
	default:
		h.supervisors[conn.UserID] = &SupervisorPresence{
			SupervisorID: conn.UserID,
			Name:         conn.UserName,
			SocketID:     conn.SocketID,
			ConnectTime:  now,
			conn:         conn,
		}
		slog.Info("Supervisor socket connected",
			"supervisorID", conn.UserID,
			"socketID", conn.SocketID,
			"totalSupervisors", len(h.supervisors))
	}

	h.emit(conn, "connection-confirmed", map[string]interface{}{
		"socket_id": conn.SocketID,
		"user_id":   conn.UserID,
		"role":      conn.Role,
	})
	h.broadcastCashierListLocked()
}

// Disconnect runs the full teardown for a socket: stop sharing if active,
// drop presence, notify supervisors, and purge view records referencing the
// user. Safe to call for sockets the hub no longer knows.
func (h *Hub) Disconnect(socketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for cashierID, presence := range h.cashiers {
		if presence.SocketID != socketID {
			continue
		}

		wasSharing := presence.HasScreenShare()
		h.teardownShareLocked(cashierID)
		if wasSharing && h.notifier != nil {
			h.notifier.Notify(models.NotificationShareDisconnect, cashierID, presence.Name, "", nil)
		}

		presence.State = StateDisconnected
		delete(h.cashiers, cashierID)
		h.purgeViewRecordsLocked(cashierID)

		h.broadcastToSupervisorsLocked("cashier-disconnected", map[string]interface{}{
			"cashier_id": cashierID,
			"name":       presence.Name,
		})
		h.broadcastCashierListLocked()

		slog.Info("Cashier socket disconnected",
			"cashierID", cashierID,
			"socketID", socketID,
			"wasSharing", wasSharing)
		return
	}

	for supervisorID, presence := range h.supervisors {
		if presence.SocketID != socketID {
			continue
		}

		delete(h.supervisors, supervisorID)
		h.dropViewerLocked(supervisorID)

		slog.Info("Supervisor socket disconnected",
			"supervisorID", supervisorID,
			"socketID", socketID)
		return
	}
}

// CashierCheckedIn handles the client's announcement that a persisted check-in
// happened. The hub trusts the announcement as a cache-coherency signal and
// does not validate it against the store.
func (h *Hub) CashierCheckedIn(conn *ClientConn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	presence, exists := h.cashiers[conn.UserID]
	if !exists {
		return fmt.Errorf("%w: cashier %s not connected", ErrNotFound, conn.UserID)
	}
	if presence.State == StateCheckedIn {
		return nil
	}
	if !transitionAllowed(presence.State, StateCheckedIn) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, presence.State, StateCheckedIn)
	}

	presence.State = StateCheckedIn
	presence.CheckedInAt = time.Now()

	h.broadcastToSupervisorsLocked("cashier-checked-in", map[string]interface{}{
		"cashier_id": presence.CashierID,
		"name":       presence.Name,
	})
	h.broadcastCashierListLocked()
	return nil
}

// CashierCheckedOut handles checkout, auto-checkout, and logout announcements.
// The event argument selects the supervisor-facing broadcast type. Ends any
// live screen share first.
func (h *Hub) CashierCheckedOut(conn *ClientConn, event string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	presence, exists := h.cashiers[conn.UserID]
	if !exists {
		return fmt.Errorf("%w: cashier %s not connected", ErrNotFound, conn.UserID)
	}

	h.teardownShareLocked(presence.CashierID)

	if presence.State != StateConnectedIdle {
		if !transitionAllowed(presence.State, StateConnectedIdle) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, presence.State, StateConnectedIdle)
		}
		presence.State = StateConnectedIdle
	}
	presence.CheckedInAt = time.Time{}

	h.broadcastToSupervisorsLocked(event, map[string]interface{}{
		"cashier_id": presence.CashierID,
		"name":       presence.Name,
	})
	h.broadcastCashierListLocked()
	return nil
}

// StartScreenSharing moves a checked-in cashier to Sharing, creates the
// ScreenShareSession, asks the cashier socket to begin producing a stream,
// and announces the share to supervisors. Rejections go back to the
// requesting socket only.
func (h *Hub) StartScreenSharing(requester *ClientConn, cashierID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cashierID == "" && requester.Role == models.RoleCashier {
		cashierID = requester.UserID
	}

	presence, exists := h.cashiers[cashierID]
	if !exists {
		h.emit(requester, "screen-share-failed", map[string]interface{}{
			"cashier_id": cashierID,
			"reason":     "cashier not connected",
		})
		return fmt.Errorf("%w: cashier %s not connected", ErrNotFound, cashierID)
	}
	if presence.State == StateSharing {
		return nil
	}
	if !transitionAllowed(presence.State, StateSharing) {
		h.emit(requester, "screen-share-failed", map[string]interface{}{
			"cashier_id": cashierID,
			"reason":     "cashier is not checked in",
		})
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, presence.State, StateSharing)
	}

	presence.State = StateSharing
	h.shares[cashierID] = &ScreenShareSession{
		CashierID:     cashierID,
		Active:        true,
		Viewers:       make(map[string]string),
		OwnerSocketID: presence.SocketID,
		StartedAt:     time.Now(),
	}

	h.emit(presence.conn, "screen-share-start-request", map[string]interface{}{
		"cashier_id": cashierID,
	})
	h.broadcastToSupervisorsLocked("screen-share-started", map[string]interface{}{
		"cashier_id": cashierID,
		"name":       presence.Name,
	})
	h.broadcastCashierListLocked()

	slog.Info("Screen share started", "cashierID", cashierID)
	return nil
}

// ScreenShareReady records the cashier's signaling address and answers every
// viewer that queued before readiness arrived, so no viewer is left pending.
func (h *Hub) ScreenShareReady(conn *ClientConn, peerID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	share, exists := h.shares[conn.UserID]
	if !exists || !share.Active {
		return fmt.Errorf("%w: no screen share session for cashier %s", ErrNotFound, conn.UserID)
	}

	share.PeerID = peerID
	share.Ready = true

	h.broadcastToSupervisorsLocked("screen-share-ready", map[string]interface{}{
		"cashier_id": conn.UserID,
		"peer_id":    peerID,
	})
	h.notifyPendingViewersLocked(share)

	slog.Info("Screen share ready", "cashierID", conn.UserID, "viewers", len(share.Viewers))
	return nil
}

// StopScreenSharing tears down the cashier's share session. Idempotent; the
// explicit stop event, checkout, logout, and socket disconnect all funnel
// through the same teardown.
func (h *Hub) StopScreenSharing(conn *ClientConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.teardownShareLocked(conn.UserID)
	h.broadcastCashierListLocked()
}

// RequestScreenView registers a supervisor as a viewer of a cashier's share
// and relays the request to the cashier. Fails fast back to the viewer when
// no active share exists; nothing is queued and no session is created.
func (h *Hub) RequestScreenView(viewer *ClientConn, viewerID, cashierID, viewerPeerID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if viewerID == "" {
		viewerID = viewer.UserID
	}

	share, shareExists := h.shares[cashierID]
	presence, connected := h.cashiers[cashierID]
	if !shareExists || !share.Active || !connected {
		h.emit(viewer, "screen-view-failed", map[string]interface{}{
			"cashier_id": cashierID,
			"reason":     "screen sharing is not available for this cashier",
		})
		return fmt.Errorf("%w: cashier %s", ErrShareUnavailable, cashierID)
	}

	share.Viewers[viewerID] = viewerPeerID
	h.viewRequests[pairKey(viewerID, cashierID)] = &ViewRequest{
		ViewerID:     viewerID,
		CashierID:    cashierID,
		ViewerPeerID: viewerPeerID,
		RequestedAt:  time.Now(),
	}

	h.emit(presence.conn, "screen-view-request", map[string]interface{}{
		"viewer_id":      viewerID,
		"viewer_peer_id": viewerPeerID,
	})

	// Answer immediately when the share is already live; otherwise the
	// viewer stays registered and is answered by notifyPendingViewers.
	if share.Ready {
		h.emit(viewer, "screen-view-ready", map[string]interface{}{
			"cashier_id": cashierID,
			"peer_id":    share.PeerID,
		})
		h.activeConnections[pairKey(viewerID, cashierID)] = &ActiveConnection{
			ViewerID:      viewerID,
			CashierID:     cashierID,
			EstablishedAt: time.Now(),
		}
	}

	slog.Info("Screen view requested", "viewerID", viewerID, "cashierID", cashierID, "ready", share.Ready)
	return nil
}

// StopScreenView removes one viewer from a share and tells the cashier.
func (h *Hub) StopScreenView(viewerID, cashierID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if share, exists := h.shares[cashierID]; exists {
		delete(share.Viewers, viewerID)
	}
	delete(h.viewRequests, pairKey(viewerID, cashierID))
	delete(h.activeConnections, pairKey(viewerID, cashierID))

	if presence, exists := h.cashiers[cashierID]; exists {
		h.emit(presence.conn, "screen-view-stop", map[string]interface{}{
			"viewer_id": viewerID,
		})
	}
}

// SendMessage relays a direct message to a specific connected user.
func (h *Hub) SendMessage(from *ClientConn, targetUserID string, data interface{}) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	target := h.findConnLocked(targetUserID)
	if target == nil {
		return fmt.Errorf("%w: user %s not connected", ErrNotFound, targetUserID)
	}

	h.emit(target, "message-received", map[string]interface{}{
		"from_user_id": from.UserID,
		"from_name":    from.UserName,
		"data":         data,
	})
	return nil
}

// CashierList snapshots the presence of every connected cashier for
// broadcasts and the supervisor dashboard.
func (h *Hub) CashierList() []CashierPresence {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cashierListLocked()
}

// CashierStateOf returns the hub state for a cashier, StateDisconnected when
// the cashier holds no open socket.
func (h *Hub) CashierStateOf(cashierID string) CashierState {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if presence, exists := h.cashiers[cashierID]; exists {
		return presence.State
	}
	return StateDisconnected
}

// SupervisorCount returns the number of connected supervisors.
func (h *Hub) SupervisorCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.supervisors)
}

// BroadcastToSupervisors emits an event to every connected supervisor.
// Delivery is best-effort per socket; an unreachable socket is pruned by its
// own disconnect event, not during the broadcast.
func (h *Hub) BroadcastToSupervisors(eventType string, data interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.broadcastToSupervisorsLocked(eventType, data)
}

// BroadcastToCashiers emits an event to every connected cashier.
func (h *Hub) BroadcastToCashiers(eventType string, data interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, presence := range h.cashiers {
		h.emit(presence.conn, eventType, data)
	}
}

// SweepStale discards view requests and active connections older than maxAge.
// Returns the number of records dropped.
func (h *Hub) SweepStale(maxAge time.Duration) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for key, request := range h.viewRequests {
		if request.RequestedAt.Before(cutoff) {
			delete(h.viewRequests, key)
			removed++
		}
	}
	for key, connection := range h.activeConnections {
		if connection.EstablishedAt.Before(cutoff) {
			delete(h.activeConnections, key)
			removed++
		}
	}

	return removed
}

// SweepLongSessions emits a long-session notification for every cashier who
// has been checked in continuously for longer than maxSession.
func (h *Hub) SweepLongSessions(maxSession time.Duration) {
	if h.notifier == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	cutoff := time.Now().Add(-maxSession)
	for _, presence := range h.cashiers {
		if presence.Active() && !presence.CheckedInAt.IsZero() && presence.CheckedInAt.Before(cutoff) {
			h.notifier.Notify(models.NotificationLongSession, presence.CashierID, presence.Name, "", map[string]interface{}{
				"checked_in_at": presence.CheckedInAt,
			})
		}
	}
}

// teardownShareLocked is the single teardown routine for a cashier's share:
// every registered viewer gets exactly one stop-request, supervisors get a
// screen-share-ended, the session is removed, and the cashier drops back to
// CheckedIn. Idempotent; callers hold the write lock.
func (h *Hub) teardownShareLocked(cashierID string) {
	share, exists := h.shares[cashierID]
	if !exists {
		return
	}

	for viewerID := range share.Viewers {
		if supervisor, ok := h.supervisors[viewerID]; ok {
			h.emit(supervisor.conn, "screen-share-stop-request", map[string]interface{}{
				"cashier_id": cashierID,
			})
		}
		delete(h.viewRequests, pairKey(viewerID, cashierID))
		delete(h.activeConnections, pairKey(viewerID, cashierID))
	}

	delete(h.shares, cashierID)

	if presence, ok := h.cashiers[cashierID]; ok && presence.State == StateSharing {
		presence.State = StateCheckedIn
	}

	h.broadcastToSupervisorsLocked("screen-share-ended", map[string]interface{}{
		"cashier_id": cashierID,
	})

	slog.Info("Screen share torn down", "cashierID", cashierID, "viewers", len(share.Viewers))
}

// notifyPendingViewersLocked answers every viewer registered before the share
// signaled readiness, guaranteeing no lost wakeup.
func (h *Hub) notifyPendingViewersLocked(share *ScreenShareSession) {
	for viewerID := range share.Viewers {
		key := pairKey(viewerID, share.CashierID)
		if _, answered := h.activeConnections[key]; answered {
			continue
		}
		supervisor, ok := h.supervisors[viewerID]
		if !ok {
			continue
		}
		h.emit(supervisor.conn, "screen-view-ready", map[string]interface{}{
			"cashier_id": share.CashierID,
			"peer_id":    share.PeerID,
		})
		h.activeConnections[key] = &ActiveConnection{
			ViewerID:      viewerID,
			CashierID:     share.CashierID,
			EstablishedAt: time.Now(),
		}
	}
}

// purgeViewRecordsLocked drops every view request and active connection that
// references the given cashier.
func (h *Hub) purgeViewRecordsLocked(cashierID string) {
	for key, request := range h.viewRequests {
		if request.CashierID == cashierID {
			delete(h.viewRequests, key)
		}
	}
	for key, connection := range h.activeConnections {
		if connection.CashierID == cashierID {
			delete(h.activeConnections, key)
		}
	}
}

// dropViewerLocked removes a disconnected supervisor from every viewer set
// and tells the affected cashiers.
func (h *Hub) dropViewerLocked(viewerID string) {
	for cashierID, share := range h.shares {
		if _, viewing := share.Viewers[viewerID]; !viewing {
			continue
		}
		delete(share.Viewers, viewerID)
		delete(h.viewRequests, pairKey(viewerID, cashierID))
		delete(h.activeConnections, pairKey(viewerID, cashierID))
		if presence, ok := h.cashiers[cashierID]; ok {
			h.emit(presence.conn, "screen-view-stop", map[string]interface{}{
				"viewer_id": viewerID,
			})
		}
	}
}

func (h *Hub) cashierListLocked() []CashierPresence {
	list := make([]CashierPresence, 0, len(h.cashiers))
	for _, presence := range h.cashiers {
		list = append(list, *presence)
	}
	return list
}

func (h *Hub) broadcastCashierListLocked() {
	h.broadcastToSupervisorsLocked("cashier-list-updated", h.cashierListLocked())
}

func (h *Hub) broadcastToSupervisorsLocked(eventType string, data interface{}) {
	for _, presence := range h.supervisors {
		h.emit(presence.conn, eventType, data)
	}
}

func (h *Hub) findConnLocked(userID string) *ClientConn {
	if presence, exists := h.cashiers[userID]; exists {
		return presence.conn
	}
	if presence, exists := h.supervisors[userID]; exists {
		return presence.conn
	}
	return nil
}

// emit marshals an event envelope onto a connection's send channel without
// blocking; a full buffer drops the event for that socket.
func (h *Hub) emit(conn *ClientConn, eventType string, data interface{}) {
	payload := EventPayload{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal hub event", "error", err, "type", eventType)
		return
	}

	if err := conn.TrySend(jsonData); err != nil {
		slog.Warn("Socket send buffer full, dropping event",
			"type", eventType,
			"userID", conn.UserID)
	}
}
