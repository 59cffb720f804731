package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserRole represents the role of a user
type UserRole string

const (
	RoleAdmin      UserRole = "admin"
	RoleSupervisor UserRole = "supervisor"
	RoleCashier    UserRole = "cashier"
)

// User represents an employee in the directory
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID   string             `bson:"user_id" json:"user_id"`
	Username string             `bson:"username" json:"username"`
	Email    string             `bson:"email" json:"email"`
	FullName string             `bson:"full_name" json:"full_name"`

	// Store association
	StoreID string `bson:"store_id,omitempty" json:"store_id,omitempty"`

	// Role and permissions
	Role UserRole `bson:"role" json:"role"`

	// Authentication
	PasswordHash string `bson:"password_hash" json:"-"`

	// Status
	IsActive  bool      `bson:"is_active" json:"is_active"`
	LastLogin time.Time `bson:"last_login,omitempty" json:"last_login,omitempty"`

	// Metadata
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// DisplayName prefers the full name and falls back to the username.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// RolePermissions defines what each role can do
type RolePermissions struct {
	Role        UserRole
	Description string
	Permissions []string
}

// GetRolePermissions returns the permissions for each role
func GetRolePermissions() map[UserRole]RolePermissions {
	return map[UserRole]RolePermissions{
		RoleAdmin: {
			Role:        RoleAdmin,
			Description: "Full access to all features",
			Permissions: []string{
				"manage_users",
				"view_monitoring",
				"review_sessions",
				"force_checkout",
				"view_notifications",
				"view_reports",
			},
		},
		RoleSupervisor: {
			Role:        RoleSupervisor,
			Description: "Monitor cashiers and review sessions",
			Permissions: []string{
				"view_monitoring",
				"review_sessions",
				"force_checkout",
				"view_notifications",
				"request_screen_view",
			},
		},
		RoleCashier: {
			Role:        RoleCashier,
			Description: "Check in and out, share screen",
			Permissions: []string{
				"check_in",
				"check_out",
				"share_screen",
				"view_own_history",
			},
		},
	}
}

// HasPermission checks if a user role has a specific permission
func (u *User) HasPermission(permission string) bool {
	permissions := GetRolePermissions()
	if rolePerms, exists := permissions[u.Role]; exists {
		for _, perm := range rolePerms.Permissions {
			if perm == permission {
				return true
			}
		}
	}
	return false
}

// IsValidRole checks if a role is valid
func IsValidRole(role string) bool {
	validRoles := []UserRole{
		RoleAdmin,
		RoleSupervisor,
		RoleCashier,
	}

	for _, validRole := range validRoles {
		if UserRole(role) == validRole {
			return true
		}
	}
	return false
}
