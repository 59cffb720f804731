package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pos-monitor/models"
)

const (
	AuthSessionDuration = 24 * time.Hour
)

// GenerateToken generates a secure random session token
func GenerateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// CreateAuthSession creates a new bearer-token session in the database
func CreateAuthSession(ctx context.Context, userID, username, email, role, ipAddress, userAgent string) (*models.AuthSession, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := time.Now()
	session := &models.AuthSession{
		ID:           primitive.NewObjectID(),
		Token:        token,
		UserID:       userID,
		Username:     username,
		Email:        email,
		Role:         role,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		CreatedAt:    now,
		LastAccessed: now,
		ExpiresAt:    now.Add(AuthSessionDuration),
		IsActive:     true,
	}

	collection := GetDatabase().Collection("auth_sessions")
	_, err = collection.InsertOne(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth session: %w", err)
	}

	return session, nil
}

// GetAuthSessionByToken retrieves an active, unexpired session by token.
// Returns (nil, nil) when the token does not resolve.
func GetAuthSessionByToken(ctx context.Context, token string) (*models.AuthSession, error) {
	collection := GetDatabase().Collection("auth_sessions")

	var session models.AuthSession
	err := collection.FindOne(ctx, bson.M{
		"token":      token,
		"is_active":  true,
		"expires_at": bson.M{"$gt": time.Now()},
	}).Decode(&session)

	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get auth session: %w", err)
	}

	// Update last accessed time; failures here do not fail the request
	collection.UpdateOne(
		ctx,
		bson.M{"_id": session.ID},
		bson.M{"$set": bson.M{"last_accessed": time.Now()}},
	)

	return &session, nil
}

// ExtendAuthSession extends the expiration time of a session
func ExtendAuthSession(ctx context.Context, token string) error {
	collection := GetDatabase().Collection("auth_sessions")

	_, err := collection.UpdateOne(
		ctx,
		bson.M{
			"token":     token,
			"is_active": true,
		},
		bson.M{
			"$set": bson.M{
				"last_accessed": time.Now(),
				"expires_at":    time.Now().Add(AuthSessionDuration),
			},
		},
	)

	if err != nil {
		return fmt.Errorf("failed to extend auth session: %w", err)
	}

	return nil
}

// DestroyAuthSession marks a session as inactive
func DestroyAuthSession(ctx context.Context, token string) error {
	collection := GetDatabase().Collection("auth_sessions")

	_, err := collection.UpdateOne(
		ctx,
		bson.M{"token": token},
		bson.M{
			"$set": bson.M{
				"is_active":  false,
				"expires_at": time.Now(),
			},
		},
	)

	if err != nil {
		return fmt.Errorf("failed to destroy auth session: %w", err)
	}

	return nil
}

// DestroyUserAuthSessions destroys all sessions for a specific user
func DestroyUserAuthSessions(ctx context.Context, userID string) error {
	collection := GetDatabase().Collection("auth_sessions")

	_, err := collection.UpdateMany(
		ctx,
		bson.M{
			"user_id":   userID,
			"is_active": true,
		},
		bson.M{
			"$set": bson.M{
				"is_active":  false,
				"expires_at": time.Now(),
			},
		},
	)

	if err != nil {
		return fmt.Errorf("failed to destroy user auth sessions: %w", err)
	}

	return nil
}

// CleanupExpiredAuthSessions removes long-expired sessions from the database
func CleanupExpiredAuthSessions(ctx context.Context) (int64, error) {
	collection := GetDatabase().Collection("auth_sessions")

	// Delete sessions that have expired more than 7 days ago
	cutoffTime := time.Now().Add(-7 * 24 * time.Hour)

	result, err := collection.DeleteMany(
		ctx,
		bson.M{
			"expires_at": bson.M{"$lt": cutoffTime},
		},
	)

	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired auth sessions: %w", err)
	}

	return result.DeletedCount, nil
}

// CreateAuthSessionIndexes creates necessary indexes for the auth_sessions collection
func CreateAuthSessionIndexes(ctx context.Context) error {
	collection := GetDatabase().Collection("auth_sessions")

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.M{"token": 1},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.M{"user_id": 1},
		},
		{
			Keys: bson.M{"expires_at": 1},
		},
		{
			Keys: bson.M{"is_active": 1, "expires_at": 1},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create auth session indexes: %w", err)
	}

	return nil
}
