package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleOperator, PermBatchStart, true},
		{RoleOperator, PermBatchCancel, true},
		{RoleOperator, PermBatchRead, true},
		{RoleOperator, PermDeviceRead, true},
		{RoleViewer, PermBatchRead, true},
		{RoleViewer, PermDeviceRead, true},
		{RoleViewer, PermEventsStream, true},
		{RoleViewer, PermBatchStart, false},
		{RoleViewer, PermBatchCancel, false},
		{Role("unknown"), PermBatchRead, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestPermissionsForRole(t *testing.T) {
	perms := PermissionsForRole(RoleViewer)
	if len(perms) == 0 {
		t.Fatal("viewer has no permissions")
	}

	// Mutating the returned slice must not leak into the role map.
	perms[0] = PermBatchStart
	if HasPermission(RoleViewer, PermBatchStart) {
		t.Error("PermissionsForRole() returned the internal slice")
	}

	if PermissionsForRole(Role("unknown")) != nil {
		t.Error("unknown role should have nil permissions")
	}
}

func TestIsValidRole(t *testing.T) {
	for _, r := range ValidRoles {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%s) = false", r)
		}
	}
	if IsValidRole(Role("admin")) {
		t.Error("IsValidRole(admin) = true")
	}
}
