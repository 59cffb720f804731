package services

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"pos-monitor/models"
)

func newCashierConn(id, name string) *ClientConn {
	return &ClientConn{
		SocketID: "sock-" + id,
		UserID:   id,
		UserName: name,
		Role:     models.RoleCashier,
		Send:     make(chan []byte, 64),
	}
}

func newSupervisorConn(id, name string) *ClientConn {
	return &ClientConn{
		SocketID: "sock-" + id,
		UserID:   id,
		UserName: name,
		Role:     models.RoleSupervisor,
		Send:     make(chan []byte, 64),
	}
}

// drainEvents empties a connection's send channel and returns the decoded
// event types in order.
func drainEvents(t *testing.T, conn *ClientConn) []EventPayload {
	t.Helper()

	var events []EventPayload
	for {
		select {
		case raw := <-conn.Send:
			var payload EventPayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				t.Fatalf("failed to decode event: %v", err)
			}
			events = append(events, payload)
		default:
			return events
		}
	}
}

func eventTypes(events []EventPayload) []string {
	types := make([]string, len(events))
	for i, event := range events {
		types[i] = event.Type
	}
	return types
}

func countType(events []EventPayload, eventType string) int {
	count := 0
	for _, event := range events {
		if event.Type == eventType {
			count++
		}
	}
	return count
}

func TestConnectConfirmsAndTracksPresence(t *testing.T) {
	hub := NewHub(nil)
	cashier := newCashierConn("c-1", "Rina")

	hub.Connect(cashier)

	events := drainEvents(t, cashier)
	if len(events) == 0 || events[0].Type != "connection-confirmed" {
		t.Fatalf("expected connection-confirmed first, got %v", eventTypes(events))
	}
	if hub.CashierStateOf("c-1") != StateConnectedIdle {
		t.Fatalf("expected connected-idle, got %s", hub.CashierStateOf("c-1"))
	}
}

func TestCheckedInAnnouncementBroadcastsToSupervisors(t *testing.T) {
	hub := NewHub(nil)
	cashier := newCashierConn("c-1", "Rina")
	supervisor := newSupervisorConn("s-1", "Dewi")

	hub.Connect(cashier)
	hub.Connect(supervisor)
	drainEvents(t, cashier)
	drainEvents(t, supervisor)

	if err := hub.CashierCheckedIn(cashier); err != nil {
		t.Fatalf("checked-in announcement failed: %v", err)
	}

	if hub.CashierStateOf("c-1") != StateCheckedIn {
		t.Fatalf("expected checked-in state")
	}

	events := drainEvents(t, supervisor)
	if countType(events, "cashier-checked-in") != 1 {
		t.Fatalf("expected one cashier-checked-in broadcast, got %v", eventTypes(events))
	}
	if countType(events, "cashier-list-updated") != 1 {
		t.Fatalf("expected a presence list update, got %v", eventTypes(events))
	}

	// A repeated announcement is a no-op, not an error
	if err := hub.CashierCheckedIn(cashier); err != nil {
		t.Fatalf("repeat announcement must be tolerated: %v", err)
	}
}

func TestSharingOnlyReachableFromCheckedIn(t *testing.T) {
	hub := NewHub(nil)
	cashier := newCashierConn("c-1", "Rina")
	hub.Connect(cashier)
	drainEvents(t, cashier)

	err := hub.StartScreenSharing(cashier, "")
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition from connected-idle, got %v", err)
	}

	events := drainEvents(t, cashier)
	if countType(events, "screen-share-failed") != 1 {
		t.Fatalf("rejection must go back to the requester, got %v", eventTypes(events))
	}
	if hub.CashierStateOf("c-1") != StateConnectedIdle {
		t.Fatalf("state must be unchanged after a rejected start")
	}
}

func TestScreenShareLifecycle(t *testing.T) {
	hub := NewHub(nil)
	cashier := newCashierConn("c-1", "Rina")
	supervisor := newSupervisorConn("s-1", "Dewi")

	hub.Connect(cashier)
	hub.Connect(supervisor)
	hub.CashierCheckedIn(cashier)
	drainEvents(t, cashier)
	drainEvents(t, supervisor)

	if err := hub.StartScreenSharing(cashier, ""); err != nil {
		t.Fatalf("start sharing failed: %v", err)
	}
	if hub.CashierStateOf("c-1") != StateSharing {
		t.Fatalf("expected sharing state")
	}

	cashierEvents := drainEvents(t, cashier)
	if countType(cashierEvents, "screen-share-start-request") != 1 {
		t.Fatalf("cashier must be asked to start producing, got %v", eventTypes(cashierEvents))
	}
	supervisorEvents := drainEvents(t, supervisor)
	if countType(supervisorEvents, "screen-share-started") != 1 {
		t.Fatalf("supervisors must learn about the share, got %v", eventTypes(supervisorEvents))
	}

	hub.StopScreenSharing(cashier)
	if hub.CashierStateOf("c-1") != StateCheckedIn {
		t.Fatalf("stop must fall back to checked-in")
	}
	supervisorEvents = drainEvents(t, supervisor)
	if countType(supervisorEvents, "screen-share-ended") != 1 {
		t.Fatalf("supervisors must learn the share ended, got %v", eventTypes(supervisorEvents))
	}

	// Teardown is idempotent
	hub.StopScreenSharing(cashier)
	if hub.CashierStateOf("c-1") != StateCheckedIn {
		t.Fatalf("second stop must be a no-op")
	}
}

func TestViewRequestWithoutShareFailsFast(t *testing.T) {
	hub := NewHub(nil)
	cashier := newCashierConn("c-1", "Rina")
	supervisor := newSupervisorConn("s-1", "Dewi")
	bystander := newSupervisorConn("s-2", "Putri")

	hub.Connect(cashier)
	hub.Connect(supervisor)
	hub.Connect(bystander)
	hub.CashierCheckedIn(cashier)
	drainEvents(t, cashier)
	drainEvents(t, supervisor)
	drainEvents(t, bystander)

	err := hub.RequestScreenView(supervisor, "s-1", "c-1", "peer-s1")
	if !errors.Is(err, ErrShareUnavailable) {
		t.Fatalf("expected ErrShareUnavailable, got %v", err)
	}

	events := drainEvents(t, supervisor)
	if countType(events, "screen-view-failed") != 1 {
		t.Fatalf("requester must get a failure, got %v", eventTypes(events))
	}
	// Failure is never broadcast to unrelated supervisors
	if events := drainEvents(t, bystander); len(events) != 0 {
		t.Fatalf("bystander must see nothing, got %v", eventTypes(events))
	}
}

func TestPendingViewerAnsweredOnReadiness(t *testing.T) {
	hub := NewHub(nil)
	cashier := newCashierConn("c-1", "Rina")
	supervisor := newSupervisorConn("s-1", "Dewi")

	hub.Connect(cashier)
	hub.Connect(supervisor)
	hub.CashierCheckedIn(cashier)
	hub.StartScreenSharing(cashier, "")
	drainEvents(t, cashier)
	drainEvents(t, supervisor)

	// The view request arrives before the share signals readiness
	if err := hub.RequestScreenView(supervisor, "s-1", "c-1", "peer-s1"); err != nil {
		t.Fatalf("view request failed: %v", err)
	}
	if events := drainEvents(t, supervisor); countType(events, "screen-view-ready") != 0 {
		t.Fatalf("viewer must not be answered before readiness, got %v", eventTypes(events))
	}

	if err := hub.ScreenShareReady(cashier, "peer-c1"); err != nil {
		t.Fatalf("readiness failed: %v", err)
	}

	events := drainEvents(t, supervisor)
	if countType(events, "screen-view-ready") != 1 {
		t.Fatalf("pending viewer must be answered exactly once, got %v", eventTypes(events))
	}
}

func TestViewRequestAfterReadinessAnsweredImmediately(t *testing.T) {
	hub := NewHub(nil)
	cashier := newCashierConn("c-1", "Rina")
	supervisor := newSupervisorConn("s-1", "Dewi")

	hub.Connect(cashier)
	hub.Connect(supervisor)
	hub.CashierCheckedIn(cashier)
	hub.StartScreenSharing(cashier, "")
	hub.ScreenShareReady(cashier, "peer-c1")
	drainEvents(t, cashier)
	drainEvents(t, supervisor)

	if err := hub.RequestScreenView(supervisor, "s-1", "c-1", "peer-s1"); err != nil {
		t.Fatalf("view request failed: %v", err)
	}

	events := drainEvents(t, supervisor)
	if countType(events, "screen-view-ready") != 1 {
		t.Fatalf("viewer must be answered immediately when ready, got %v", eventTypes(events))
	}
}

func TestTeardownNotifiesEveryViewerExactlyOnce(t *testing.T) {
	hub := NewHub(nil)
	cashier := newCashierConn("c-1", "Rina")
	viewerA := newSupervisorConn("s-1", "Dewi")
	viewerB := newSupervisorConn("s-2", "Putri")

	hub.Connect(cashier)
	hub.Connect(viewerA)
	hub.Connect(viewerB)
	hub.CashierCheckedIn(cashier)
	hub.StartScreenSharing(cashier, "")
	hub.ScreenShareReady(cashier, "peer-c1")
	hub.RequestScreenView(viewerA, "s-1", "c-1", "peer-a")
	hub.RequestScreenView(viewerB, "s-2", "c-1", "peer-b")
	drainEvents(t, cashier)
	drainEvents(t, viewerA)
	drainEvents(t, viewerB)

	hub.StopScreenSharing(cashier)

	for _, viewer := range []*ClientConn{viewerA, viewerB} {
		events := drainEvents(t, viewer)
		if countType(events, "screen-share-stop-request") != 1 {
			t.Fatalf("viewer %s must get exactly one stop-request, got %v", viewer.UserID, eventTypes(events))
		}
	}

	// The session is gone; a new view request fails fast
	err := hub.RequestScreenView(viewerA, "s-1", "c-1", "peer-a")
	if !errors.Is(err, ErrShareUnavailable) {
		t.Fatalf("expected ErrShareUnavailable after teardown, got %v", err)
	}
}

func TestAbruptDisconnectEndsShareAndPresence(t *testing.T) {
	notifier := &recordingNotifier{}
	hub := NewHub(notifier)
	cashier := newCashierConn("c-1", "Rina")
	supervisor := newSupervisorConn("s-1", "Dewi")

	hub.Connect(cashier)
	hub.Connect(supervisor)
	hub.CashierCheckedIn(cashier)
	hub.StartScreenSharing(cashier, "")
	hub.ScreenShareReady(cashier, "peer-c1")
	hub.RequestScreenView(supervisor, "s-1", "c-1", "peer-s1")
	drainEvents(t, cashier)
	drainEvents(t, supervisor)

	// No explicit stop; the socket just drops
	hub.Disconnect(cashier.SocketID)

	events := drainEvents(t, supervisor)
	if countType(events, "screen-share-stop-request") != 1 {
		t.Fatalf("viewer must be told the stream is gone, got %v", eventTypes(events))
	}
	if countType(events, "screen-share-ended") != 1 {
		t.Fatalf("share end must be broadcast, got %v", eventTypes(events))
	}
	if countType(events, "cashier-disconnected") != 1 {
		t.Fatalf("disconnect must be broadcast, got %v", eventTypes(events))
	}
	if hub.CashierStateOf("c-1") != StateDisconnected {
		t.Fatalf("presence must be removed after disconnect")
	}
	if len(notifier.events) != 1 || notifier.events[0] != models.NotificationShareDisconnect {
		t.Fatalf("expected a screen-share-disconnected notification, got %v", notifier.events)
	}
}

func TestSupervisorDisconnectLeavesViewerSets(t *testing.T) {
	hub := NewHub(nil)
	cashier := newCashierConn("c-1", "Rina")
	supervisor := newSupervisorConn("s-1", "Dewi")

	hub.Connect(cashier)
	hub.Connect(supervisor)
	hub.CashierCheckedIn(cashier)
	hub.StartScreenSharing(cashier, "")
	hub.ScreenShareReady(cashier, "peer-c1")
	hub.RequestScreenView(supervisor, "s-1", "c-1", "peer-s1")
	drainEvents(t, cashier)

	hub.Disconnect(supervisor.SocketID)

	events := drainEvents(t, cashier)
	if countType(events, "screen-view-stop") != 1 {
		t.Fatalf("cashier must learn the viewer left, got %v", eventTypes(events))
	}
	if hub.SupervisorCount() != 0 {
		t.Fatalf("supervisor presence must be removed")
	}
}

func TestCheckedOutEndsShareFirst(t *testing.T) {
	hub := NewHub(nil)
	cashier := newCashierConn("c-1", "Rina")
	supervisor := newSupervisorConn("s-1", "Dewi")

	hub.Connect(cashier)
	hub.Connect(supervisor)
	hub.CashierCheckedIn(cashier)
	hub.StartScreenSharing(cashier, "")
	drainEvents(t, cashier)
	drainEvents(t, supervisor)

	if err := hub.CashierCheckedOut(cashier, "cashier-checked-out"); err != nil {
		t.Fatalf("checkout announcement failed: %v", err)
	}

	if hub.CashierStateOf("c-1") != StateConnectedIdle {
		t.Fatalf("expected connected-idle after checkout, got %s", hub.CashierStateOf("c-1"))
	}
	events := drainEvents(t, supervisor)
	if countType(events, "screen-share-ended") != 1 {
		t.Fatalf("share must end before the checkout broadcast, got %v", eventTypes(events))
	}
	if countType(events, "cashier-checked-out") != 1 {
		t.Fatalf("checkout must be broadcast, got %v", eventTypes(events))
	}
}

func TestSendMessageRelaysToTarget(t *testing.T) {
	hub := NewHub(nil)
	cashier := newCashierConn("c-1", "Rina")
	supervisor := newSupervisorConn("s-1", "Dewi")

	hub.Connect(cashier)
	hub.Connect(supervisor)
	drainEvents(t, cashier)
	drainEvents(t, supervisor)

	if err := hub.SendMessage(supervisor, "c-1", map[string]string{"note": "till audit at 3pm"}); err != nil {
		t.Fatalf("relay failed: %v", err)
	}

	events := drainEvents(t, cashier)
	if countType(events, "message-received") != 1 {
		t.Fatalf("target must receive the message, got %v", eventTypes(events))
	}

	if err := hub.SendMessage(supervisor, "nobody", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown target, got %v", err)
	}
}

func TestSweepStaleDropsOldRecords(t *testing.T) {
	hub := NewHub(nil)
	cashier := newCashierConn("c-1", "Rina")
	supervisor := newSupervisorConn("s-1", "Dewi")

	hub.Connect(cashier)
	hub.Connect(supervisor)
	hub.CashierCheckedIn(cashier)
	hub.StartScreenSharing(cashier, "")
	hub.ScreenShareReady(cashier, "peer-c1")
	hub.RequestScreenView(supervisor, "s-1", "c-1", "peer-s1")

	// Age every record past the cutoff
	hub.mu.Lock()
	for _, request := range hub.viewRequests {
		request.RequestedAt = time.Now().Add(-10 * time.Minute)
	}
	for _, connection := range hub.activeConnections {
		connection.EstablishedAt = time.Now().Add(-10 * time.Minute)
	}
	hub.mu.Unlock()

	removed := hub.SweepStale(5 * time.Minute)
	if removed != 2 {
		t.Fatalf("expected 2 stale records removed, got %d", removed)
	}
	if removed := hub.SweepStale(5 * time.Minute); removed != 0 {
		t.Fatalf("second sweep must find nothing, got %d", removed)
	}
}

func TestReconnectEndsPreviousSocketsShare(t *testing.T) {
	notifier := &recordingNotifier{}
	hub := NewHub(notifier)
	old := newCashierConn("c-1", "Rina")
	supervisor := newSupervisorConn("s-1", "Dewi")

	hub.Connect(old)
	hub.Connect(supervisor)
	hub.CashierCheckedIn(old)
	hub.StartScreenSharing(old, "")
	hub.ScreenShareReady(old, "peer-old")
	hub.RequestScreenView(supervisor, "s-1", "c-1", "peer-s1")
	drainEvents(t, old)
	drainEvents(t, supervisor)

	// Same cashier comes back on a fresh socket while the old one is sharing
	replacement := &ClientConn{
		SocketID: "sock-c-1-replacement",
		UserID:   "c-1",
		UserName: "Rina",
		Role:     models.RoleCashier,
		Send:     make(chan []byte, 64),
	}
	hub.Connect(replacement)

	if hub.CashierStateOf("c-1") != StateConnectedIdle {
		t.Fatalf("reconnect must reset the cashier to connected-idle, got %s", hub.CashierStateOf("c-1"))
	}

	events := drainEvents(t, supervisor)
	if countType(events, "screen-share-stop-request") != 1 {
		t.Fatalf("viewer must get exactly one stop-request on reconnect, got %v", eventTypes(events))
	}
	if countType(events, "screen-share-ended") != 1 {
		t.Fatalf("share end must be broadcast on reconnect, got %v", eventTypes(events))
	}
	if len(notifier.events) != 1 || notifier.events[0] != models.NotificationShareDisconnect {
		t.Fatalf("expected a screen-share-disconnected notification, got %v", notifier.events)
	}

	// The old session must not survive to answer viewers with a stale peer
	err := hub.RequestScreenView(supervisor, "s-1", "c-1", "peer-s1")
	if !errors.Is(err, ErrShareUnavailable) {
		t.Fatalf("stale session must not answer view requests, got %v", err)
	}
	drainEvents(t, supervisor)

	// The old socket's late disconnect must not tear down the new presence
	hub.Disconnect(old.SocketID)
	if hub.CashierStateOf("c-1") != StateConnectedIdle {
		t.Fatalf("late disconnect of the replaced socket must be a no-op, got %s", hub.CashierStateOf("c-1"))
	}
}

func TestTrySendReportsFullBuffer(t *testing.T) {
	conn := &ClientConn{
		SocketID: "sock-1",
		UserID:   "c-1",
		Send:     make(chan []byte, 1),
	}

	if err := conn.TrySend([]byte("first")); err != nil {
		t.Fatalf("send into an empty buffer must succeed: %v", err)
	}
	if err := conn.TrySend([]byte("second")); !errors.Is(err, ErrConnectionBufferFull) {
		t.Fatalf("expected ErrConnectionBufferFull, got %v", err)
	}
}

type recordingNotifier struct {
	events []models.NotificationType
}

func (r *recordingNotifier) Notify(notificationType models.NotificationType, _, _, _ string, _ map[string]interface{}) {
	r.events = append(r.events, notificationType)
}
