package auth

import "github.com/staykit/pms/internal/enum"

// rolePermissions is the static role→permission table. Superadmin is not
// listed: it implicitly holds every permission.
var rolePermissions = map[string][]string{
	enum.RoleAdmin: {
		"dashboard:read",
		"rooms:read", "rooms:write", "rooms:delete",
		"bookings:read", "bookings:write", "bookings:delete",
		"guests:read", "guests:write", "guests:delete",
		"orders:read", "orders:write",
		"menu:read", "menu:write", "menu:delete",
		"housekeeping:read", "housekeeping:write",
		"payments:read", "payments:write",
		"reviews:read", "reviews:write",
		"reports:read",
		"settings:read", "settings:write",
		"staff:read", "staff:write",
	},
	enum.RoleManager: {
		"dashboard:read",
		"rooms:read", "rooms:write",
		"bookings:read", "bookings:write",
		"guests:read", "guests:write",
		"orders:read", "orders:write",
		"menu:read", "menu:write",
		"housekeeping:read", "housekeeping:write",
		"payments:read",
		"reviews:read", "reviews:write",
		"reports:read",
		"staff:read",
	},
	enum.RoleReceptionist: {
		"dashboard:read",
		"rooms:read",
		"bookings:read", "bookings:write",
		"guests:read", "guests:write",
		"orders:read",
		"payments:read", "payments:write",
	},
	enum.RoleHousekeeping: {
		"rooms:read",
		"housekeeping:read", "housekeeping:write",
	},
	enum.RoleRestaurant: {
		"orders:read", "orders:write",
		"menu:read", "menu:write",
	},
	enum.RoleAccountant: {
		"dashboard:read",
		"payments:read", "payments:write",
		"reports:read",
	},
	enum.RoleGuest: {},
}

var permissionIndex = buildIndex(rolePermissions)

func buildIndex(table map[string][]string) map[string]map[string]struct{} {
	idx := make(map[string]map[string]struct{}, len(table))
	for role, perms := range table {
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		idx[role] = set
	}
	return idx
}

// HasPermission reports whether role grants permission. Unknown roles have none.
func HasPermission(role, permission string) bool {
	if role == enum.RoleSuperadmin {
		return true
	}
	_, ok := permissionIndex[role][permission]
	return ok
}

// Permissions returns a copy of the permissions listed for role.
func Permissions(role string) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}
