package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pos-monitor/models"
)

// NotificationService persists domain events and fans them out to connected
// supervisors. The payload shape {type, cashierId, cashierName, sessionId?,
// metadata} is stable; dashboard consumers rely on it.
type NotificationService struct {
	hub *Hub
}

func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

// AttachHub wires the hub for fan-out. Set once at boot; the hub and the
// notification service reference each other so the hub is attached after
// construction.
func (n *NotificationService) AttachHub(hub *Hub) {
	n.hub = hub
}

// Notify persists the event and pushes it to every connected supervisor.
// Persistence failures are logged and do not block fan-out.
func (n *NotificationService) Notify(notificationType models.NotificationType, cashierID, cashierName, sessionID string, metadata map[string]interface{}) {
	notification := &models.Notification{
		ID:          primitive.NewObjectID(),
		Type:        notificationType,
		CashierID:   cashierID,
		CashierName: cashierName,
		SessionID:   sessionID,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	collection := GetDatabase().Collection("notifications")
	if _, err := collection.InsertOne(ctx, notification); err != nil {
		slog.Error("Failed to persist notification",
			"error", err,
			"type", notificationType,
			"cashierID", cashierID)
	}

	if n.hub != nil {
		n.hub.BroadcastToSupervisors("notification", notification)
	}

	slog.Info("Notification emitted",
		"type", notificationType,
		"cashierID", cashierID,
		"sessionID", sessionID)
}

// RecentNotifications returns the newest persisted events, most recent first.
func RecentNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	collection := GetDatabase().Collection("notifications")
	cursor, err := collection.Find(ctx, bson.M{},
		options.Find().SetSort(bson.M{"created_at": -1}).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("failed to find notifications: %w", err)
	}
	defer cursor.Close(ctx)

	var notifications []models.Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}

	return notifications, nil
}

// MarkNotificationRead flags a persisted notification as read.
func MarkNotificationRead(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: invalid notification id", ErrValidation)
	}

	collection := GetDatabase().Collection("notifications")
	result, err := collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
