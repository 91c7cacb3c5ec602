package models

import "time"

// Built-in role names. ADMIN is distinguished only by business-rule checks
// (lockout exemption), not by a separate type.
const (
	RoleAdmin    = "ADMIN"
	RoleManager  = "MANAGER"
	RoleSecurity = "SECURITY"
	RoleUser     = "USER"
)

// Role groups permission strings and is assigned to users many-to-many.
type Role struct {
	ID          string
	Name        string
	Description string
	Permissions []string // opaque capability tokens, e.g. "READ_USERS"
	Active      bool
	CreatedAt   time.Time
}

// HasPermission reports whether the role grants the capability.
func (r *Role) HasPermission(permission string) bool {
	for _, p := range r.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}
