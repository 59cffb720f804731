package models

import "testing"

func TestHasPermissionFollowsRoleTable(t *testing.T) {
	cases := []struct {
		role       UserRole
		permission string
		want       bool
	}{
		{RoleAdmin, "manage_users", true},
		{RoleAdmin, "force_checkout", true},
		{RoleSupervisor, "request_screen_view", true},
		{RoleSupervisor, "manage_users", false},
		{RoleCashier, "check_in", true},
		{RoleCashier, "view_monitoring", false},
		{UserRole("intern"), "check_in", false},
	}

	for _, tc := range cases {
		user := User{Role: tc.role}
		if got := user.HasPermission(tc.permission); got != tc.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tc.role, tc.permission, got, tc.want)
		}
	}
}

func TestGetRolePermissionsCoversEveryRole(t *testing.T) {
	table := GetRolePermissions()
	for _, role := range []UserRole{RoleAdmin, RoleSupervisor, RoleCashier} {
		perms, exists := table[role]
		if !exists {
			t.Fatalf("role %s missing from permission table", role)
		}
		if len(perms.Permissions) == 0 {
			t.Fatalf("role %s has no permissions", role)
		}
	}
}

func TestIsValidRole(t *testing.T) {
	for _, role := range []string{"admin", "supervisor", "cashier"} {
		if !IsValidRole(role) {
			t.Errorf("role %q must be valid", role)
		}
	}
	for _, role := range []string{"", "intern", "Admin"} {
		if IsValidRole(role) {
			t.Errorf("role %q must be invalid", role)
		}
	}
}

func TestDisplayNamePrefersFullName(t *testing.T) {
	user := User{Username: "rina", FullName: "Rina Kusuma"}
	if user.DisplayName() != "Rina Kusuma" {
		t.Fatalf("expected full name, got %q", user.DisplayName())
	}

	user.FullName = ""
	if user.DisplayName() != "rina" {
		t.Fatalf("expected username fallback, got %q", user.DisplayName())
	}
}
