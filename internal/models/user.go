package models

import (
	"time"
)

// User represents an account in the IAM system.
// All mutating logic lives in the owning services; this is plain data.
type User struct {
	ID                  string
	Username            string
	Email               string
	PasswordHash        string
	FirstName           string
	LastName            string
	Enabled             bool
	Locked              bool
	FailedLoginAttempts int
	LockTime            *time.Time // set whenever Locked is true
	MustChangePassword  bool
	TwoFactorEnabled    bool
	TwoFactorSecret     string // base32 TOTP secret, empty when 2FA was never set up
	PasswordHistory     []string
	PasswordChangedAt   *time.Time
	LastLoginAt         *time.Time
	Roles               []*Role
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasRole reports whether the user holds the named role.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// RoleNames returns the names of the user's roles.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}
