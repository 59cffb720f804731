package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"pos-monitor/models"
	"pos-monitor/services"
)

// SocketMessage represents an incoming WebSocket event
type SocketMessage struct {
	Type         string          `json:"type"`
	CashierID    string          `json:"cashier_id,omitempty"`
	ViewerID     string          `json:"viewer_id,omitempty"`
	ViewerPeerID string          `json:"viewer_peer_id,omitempty"`
	PeerID       string          `json:"peer_id,omitempty"`
	TargetUserID string          `json:"target_user_id,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// WebSocketUpgrade upgrades HTTP connection to WebSocket
func WebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// authSessionLookup resolves a handshake token to its session. Tests swap in
// an in-memory lookup.
var authSessionLookup = services.GetAuthSessionByToken

// WebSocketAuth validates the {token, userId} handshake before the upgrade.
// The connection is rejected here, before any event handler runs, when the
// token is missing, invalid, or issued to a different user.
func WebSocketAuth(c *fiber.Ctx) error {
	token := c.Query("token")
	userID := c.Query("userId")

	if token == "" || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "token and userId are required",
		})
	}

	session, err := authSessionLookup(c.Context(), token)
	if err != nil {
		slog.Error("Handshake token lookup failed", "error", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication failed",
		})
	}
	if session == nil || session.UserID != userID {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	c.Locals("user_id", session.UserID)
	c.Locals("username", session.Username)
	c.Locals("role", session.Role)

	return c.Next()
}

// HandleWebSocket runs one authenticated socket: register with the hub, pump
// outgoing events, and dispatch incoming events in arrival order. All hub
// mutations happen synchronously inside the dispatch so per-socket ordering
// is preserved; the session-store calls are the only suspension points.
func HandleWebSocket(c *websocket.Conn) {
	userID, _ := c.Locals("user_id").(string)
	username, _ := c.Locals("username").(string)
	role, _ := c.Locals("role").(string)

	if userID == "" {
		slog.Error("WebSocket connection without user ID")
		c.Close()
		return
	}

	conn := &services.ClientConn{
		SocketID: uuid.New().String(),
		UserID:   userID,
		UserName: username,
		Role:     models.UserRole(role),
		Send:     make(chan []byte, 256),
	}

	hub.Connect(conn)
	defer hub.Disconnect(conn.SocketID)

	slog.Info("WebSocket connection established",
		"userID", userID,
		"role", role,
		"socketID", conn.SocketID)

	go handleSocketSend(conn, c)
	handleSocketReceive(conn, c)
}

// handleSocketSend pumps hub events out to the client and keeps the
// connection alive with pings.
func handleSocketSend(conn *services.ClientConn, c *websocket.Conn) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			c.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Error("Failed to write WebSocket message", "error", err)
				return
			}

		case <-ticker.C:
			c.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleSocketReceive reads events from the client and dispatches them.
// Events from one socket are processed strictly in arrival order.
func handleSocketReceive(conn *services.ClientConn, c *websocket.Conn) {
	defer c.Close()

	c.SetReadLimit(512 * 1024)
	c.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}

		c.SetReadDeadline(time.Now().Add(60 * time.Second))

		var msg SocketMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			slog.Error("Failed to parse WebSocket message", "error", err)
			continue
		}

		dispatchSocketMessage(conn, msg)
	}
}

// dispatchSocketMessage routes one client event to the hub. Any event from a
// cashier counts as activity on their open session entry.
func dispatchSocketMessage(conn *services.ClientConn, msg SocketMessage) {
	if conn.Role == models.RoleCashier {
		touchActivity(conn.UserID)
	}

	switch msg.Type {
	case "ping":
		pong, err := json.Marshal(map[string]string{"type": "pong"})
		if err == nil {
			if err := conn.TrySend(pong); err != nil {
				slog.Warn("Dropping pong reply, send buffer full", "userID", conn.UserID)
			}
		}

	case "cashier-checked-in":
		if err := hub.CashierCheckedIn(conn); err != nil {
			slog.Warn("Check-in announcement rejected", "error", err, "userID", conn.UserID)
		}

	case "cashier-checked-out":
		if err := hub.CashierCheckedOut(conn, "cashier-checked-out"); err != nil {
			slog.Warn("Checkout announcement rejected", "error", err, "userID", conn.UserID)
		}

	case "cashier-auto-checked-out":
		if err := hub.CashierCheckedOut(conn, "cashier-auto-checked-out"); err != nil {
			slog.Warn("Auto-checkout announcement rejected", "error", err, "userID", conn.UserID)
		}

	case "cashier-logged-out":
		if err := hub.CashierCheckedOut(conn, "cashier-logged-out"); err != nil {
			slog.Warn("Logout announcement rejected", "error", err, "userID", conn.UserID)
		}

	case "start-screen-sharing":
		if err := hub.StartScreenSharing(conn, msg.CashierID); err != nil {
			slog.Warn("Start screen sharing rejected", "error", err, "userID", conn.UserID)
			return
		}
		updateStoredScreenShare(conn.UserID, msg.CashierID, true, "")

	case "stop-screen-sharing":
		hub.StopScreenSharing(conn)
		updateStoredScreenShare(conn.UserID, "", false, "")

	case "screen-share-ready":
		if err := hub.ScreenShareReady(conn, msg.PeerID); err != nil {
			slog.Warn("Screen share ready rejected", "error", err, "userID", conn.UserID)
			return
		}
		updateStoredScreenShare(conn.UserID, "", true, msg.PeerID)

	case "request-screen-view":
		if err := hub.RequestScreenView(conn, msg.ViewerID, msg.CashierID, msg.ViewerPeerID); err != nil {
			slog.Info("Screen view request failed", "error", err, "viewerID", conn.UserID, "cashierID", msg.CashierID)
		}

	case "stop-screen-view":
		viewerID := msg.ViewerID
		if viewerID == "" {
			viewerID = conn.UserID
		}
		hub.StopScreenView(viewerID, msg.CashierID)

	case "send-message":
		var data interface{}
		if len(msg.Data) > 0 {
			json.Unmarshal(msg.Data, &data)
		}
		if err := hub.SendMessage(conn, msg.TargetUserID, data); err != nil {
			slog.Warn("Message relay failed", "error", err, "targetUserID", msg.TargetUserID)
		}

	default:
		slog.Warn("Unknown WebSocket message type",
			"type", msg.Type,
			"userID", conn.UserID)
	}
}

// touchActivity bumps last_activity_time on the cashier's open entry.
// Best-effort; a failure never interrupts event handling.
func touchActivity(cashierID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sessionService.TouchActivity(ctx, cashierID); err != nil {
		slog.Error("Failed to record cashier activity", "error", err, "cashierID", cashierID)
	}
}

// updateStoredScreenShare mirrors the hub's screen-share state onto the open
// session entry. The hub never touches the store itself; this handler is the
// caller of both, so presence and store can diverge briefly.
func updateStoredScreenShare(senderID, cashierID string, enabled bool, peerID string) {
	if cashierID == "" {
		cashierID = senderID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sessionService.UpdateScreenShare(ctx, cashierID, enabled, peerID); err != nil {
		slog.Error("Failed to record screen share state", "error", err, "cashierID", cashierID)
	}
}
