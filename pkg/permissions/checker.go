// Package permissions maps CRM roles to permission strings and checks them
// with wildcard support.
//
// Permission Format:
//   - "*" - Full access (all permissions)
//   - "resource.*" - All actions on a resource (e.g., "deals.*")
//   - "resource.action" - Specific action (e.g., "products.write")
package permissions

import (
	"strings"
)

// Roles in ascending order of privilege.
const (
	RoleMember = "MEMBER"
	RoleAdmin  = "ADMIN"
	RoleOwner  = "OWNER"
)

// Permissions checked by the CRM services.
const (
	DealsRead        = "deals.read"
	DealsWrite       = "deals.write"
	ClientsRead      = "clients.read"
	ClientsWrite     = "clients.write"
	ProductsRead     = "products.read"
	ProductsWrite    = "products.write"
	PipelinesRead    = "pipelines.read"
	PipelinesWrite   = "pipelines.write"
	InvoicesRead     = "invoices.read"
	InvoicesWrite    = "invoices.write"
	TasksRead        = "tasks.read"
	TasksWrite       = "tasks.write"
	UsersRead        = "users.read"
	UsersWrite       = "users.write"
	UsersRolesAssign = "users.roles.assign"
	SettingsRead     = "settings.read"
	SettingsWrite    = "settings.write"
	SubscriptionRead = "subscription.read"
	ReportsRead      = "reports.read"
	ExportsRead      = "exports.read"
	AIUse            = "ai.use"
)

var rolePermissions = map[string][]string{
	RoleOwner: {"*"},
	RoleAdmin: {
		"deals.*", "clients.*", "products.*", "pipelines.*", "invoices.*", "tasks.*",
		"users.*", "settings.*", SubscriptionRead, ReportsRead, ExportsRead, AIUse,
	},
	RoleMember: {
		"deals.*", "clients.*", ProductsRead, PipelinesRead, "invoices.*", "tasks.*",
		SettingsRead, ReportsRead, ExportsRead, AIUse,
	},
}

var roleRank = map[string]int{
	RoleMember: 1,
	RoleAdmin:  2,
	RoleOwner:  3,
}

// ForRole returns the permissions granted to role. Unknown roles get none.
func ForRole(role string) []string {
	return rolePermissions[role]
}

// IsValidRole reports whether role is one of OWNER, ADMIN, MEMBER.
func IsValidRole(role string) bool {
	_, ok := roleRank[role]
	return ok
}

// AtLeast reports whether role is at least as privileged as min.
func AtLeast(role, min string) bool {
	return roleRank[role] >= roleRank[min] && roleRank[role] > 0
}

// RoleCan reports whether role grants the required permission.
func RoleCan(role, required string) bool {
	return HasPermission(ForRole(role), required)
}

// HasPermission checks if the user's permissions include the required permission.
// Supports wildcard matching:
//   - "*" matches everything
//   - "deals.*" matches "deals.read", "deals.write", etc.
//   - Exact match for specific permissions
func HasPermission(userPerms []string, required string) bool {
	if required == "" {
		return true
	}

	for _, p := range userPerms {
		if p == "*" || p == required {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, ".*")
			if strings.HasPrefix(required, prefix+".") {
				return true
			}
		}
	}
	return false
}
