package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuthSession is an opaque bearer-token session. The same token is presented
// on HTTP requests and in the websocket handshake payload.
type AuthSession struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Token        string             `bson:"token" json:"token"`
	UserID       string             `bson:"user_id" json:"user_id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	Role         string             `bson:"role" json:"role"`
	IPAddress    string             `bson:"ip_address,omitempty" json:"ip_address,omitempty"`
	UserAgent    string             `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	LastAccessed time.Time          `bson:"last_accessed" json:"last_accessed"`
	ExpiresAt    time.Time          `bson:"expires_at" json:"expires_at"`
	IsActive     bool               `bson:"is_active" json:"is_active"`
}
