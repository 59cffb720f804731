package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"pos-monitor/models"
)

// HashPassword hashes a plain-text password with bcrypt
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CreateUser creates a new user in the directory
func CreateUser(ctx context.Context, user *models.User) error {
	collection := database.Collection("users")

	existingUser := collection.FindOne(ctx, bson.M{"user_id": user.UserID})
	if existingUser.Err() != mongo.ErrNoDocuments {
		return fmt.Errorf("user already exists with id %s", user.UserID)
	}

	if !models.IsValidRole(string(user.Role)) {
		return fmt.Errorf("%w: invalid role %q", ErrValidation, user.Role)
	}

	// Hash password if it's not already hashed
	if user.PasswordHash != "" && !strings.HasPrefix(user.PasswordHash, "$2a$") {
		hashedPassword, err := HashPassword(user.PasswordHash)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		user.PasswordHash = hashedPassword
	}

	user.ID = primitive.NewObjectID()
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	user.IsActive = true

	_, err := collection.InsertOne(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("User created",
		"userID", user.UserID,
		"username", user.Username,
		"role", user.Role)

	return nil
}

// GetUserByID retrieves a user by their directory identifier
func GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	collection := database.Collection("users")

	var user models.User
	err := collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetUserByEmail retrieves a user by email for login
func GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	collection := database.Collection("users")

	var user models.User
	err := collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// VerifyPassword compares a plain-text password against the stored hash
func VerifyPassword(user *models.User, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
}

// UpdateUserLastLogin records a successful login
func UpdateUserLastLogin(ctx context.Context, userID string) error {
	collection := database.Collection("users")

	_, err := collection.UpdateOne(
		ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{
			"last_login": time.Now(),
			"updated_at": time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return nil
}

// GetUsersByRole lists active users holding a role
func GetUsersByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	collection := database.Collection("users")

	cursor, err := collection.Find(ctx, bson.M{"role": role, "is_active": true})
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	return users, nil
}
