package domain

import "github.com/brightdesk/crm-backend/pkg/permissions"

// Role is a user's role within their tenant.
type Role string

const (
	RoleOwner  Role = permissions.RoleOwner
	RoleAdmin  Role = permissions.RoleAdmin
	RoleMember Role = permissions.RoleMember
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return permissions.IsValidRole(string(r))
}

// AtLeast reports whether r is as privileged as min or more.
func (r Role) AtLeast(min Role) bool {
	return permissions.AtLeast(string(r), string(min))
}

// Can reports whether r grants the permission.
func (r Role) Can(permission string) bool {
	return permissions.RoleCan(string(r), permission)
}
