package auth_test

import (
	"testing"

	"github.com/staykit/pms/internal/auth"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role       string
		permission string
		want       bool
	}{
		{"superadmin", "anything:at-all", true},
		{"superadmin", "staff:delete", true},
		{"admin", "rooms:write", true},
		{"admin", "staff:delete", false},
		{"guest", "rooms:read", false},
		{"guest", "orders:read", false},
		{"guest", "", false},
		{"receptionist", "bookings:write", true},
		{"receptionist", "settings:write", false},
		{"housekeeping", "housekeeping:write", true},
		{"restaurant", "orders:write", true},
		{"night-auditor", "rooms:read", false},
		{"", "rooms:read", false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.permission, func(t *testing.T) {
			if got := auth.HasPermission(tt.role, tt.permission); got != tt.want {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.permission, got, tt.want)
			}
		})
	}
}

func TestPermissionsReturnsCopy(t *testing.T) {
	perms := auth.Permissions("admin")
	if len(perms) == 0 {
		t.Fatal("expected admin permissions")
	}
	perms[0] = "mutated"
	if auth.Permissions("admin")[0] == "mutated" {
		t.Fatal("Permissions must not expose the shared table")
	}
	if got := auth.Permissions("guest"); len(got) != 0 {
		t.Errorf("guest permissions: got %v, want none", got)
	}
}
