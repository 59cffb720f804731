package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Order is the sales-store view of a completed transaction. Only the fields
// the checkout statistics need are modeled here; the order store itself is
// owned by the wider POS backend.
type Order struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderID   string             `bson:"order_id" json:"order_id"`
	CashierID string             `bson:"cashier_id" json:"cashier_id"`
	Total     float64            `bson:"total" json:"total"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// NotificationType classifies the domain events the core emits.
type NotificationType string

const (
	NotificationCheckIn         NotificationType = "check-in"
	NotificationCheckOut        NotificationType = "check-out"
	NotificationAutoCheckout    NotificationType = "auto-checkout"
	NotificationForceCheckout   NotificationType = "force-checkout"
	NotificationLongSession     NotificationType = "long-session"
	NotificationShareDisconnect NotificationType = "screen-share-disconnected"
)

// Notification is a persisted domain event with the stable payload shape
// consumed by the supervisor dashboard.
type Notification struct {
	ID          primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	Type        NotificationType       `bson:"type" json:"type"`
	CashierID   string                 `bson:"cashier_id" json:"cashier_id"`
	CashierName string                 `bson:"cashier_name" json:"cashier_name"`
	SessionID   string                 `bson:"session_id,omitempty" json:"session_id,omitempty"`
	Metadata    map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Read        bool                   `bson:"read" json:"read"`
	CreatedAt   time.Time              `bson:"created_at" json:"created_at"`
}
