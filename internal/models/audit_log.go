package models

import "time"

// Audited actions
const (
	ActionLoginSuccess            = "LOGIN_SUCCESS"
	ActionLoginFailed             = "LOGIN_FAILED"
	ActionLogout                  = "LOGOUT"
	ActionPasswordChanged         = "PASSWORD_CHANGED"
	ActionPasswordChangeFailed    = "PASSWORD_CHANGE_FAILED"
	ActionPasswordReset           = "PASSWORD_RESET"
	ActionUserCreated             = "USER_CREATED"
	ActionUserUpdated             = "USER_UPDATED"
	ActionUserDeleted             = "USER_DELETED"
	ActionUserEnabled             = "USER_ENABLED"
	ActionUserDisabled            = "USER_DISABLED"
	ActionUserLocked              = "USER_LOCKED"
	ActionUserUnlocked            = "USER_UNLOCKED"
	ActionRoleCreated             = "ROLE_CREATED"
	ActionRoleUpdated             = "ROLE_UPDATED"
	ActionRoleDeleted             = "ROLE_DELETED"
	ActionRoleAssigned            = "ROLE_ASSIGNED"
	ActionRoleRemoved             = "ROLE_REMOVED"
	ActionPermissionAssigned      = "PERMISSION_ASSIGNED"
	ActionPermissionRemoved       = "PERMISSION_REMOVED"
	ActionRegistrationSubmitted   = "REGISTRATION_SUBMITTED"
	ActionRegistrationApproved    = "REGISTRATION_APPROVED"
	ActionRegistrationRejected    = "REGISTRATION_REJECTED"
	ActionTwoFactorSetupInitiated = "2FA_SETUP_INITIATED"
	ActionTwoFactorEnabled        = "2FA_ENABLED"
	ActionTwoFactorDisabled       = "2FA_DISABLED"
	ActionTwoFactorFailed         = "2FA_VERIFICATION_FAILED"
	ActionAPIKeyCreated           = "API_KEY_CREATED"
	ActionAPIKeyRevoked           = "API_KEY_REVOKED"
	ActionSessionCreated          = "SESSION_CREATED"
	ActionSessionInvalidated      = "SESSION_INVALIDATED"
	ActionAllSessionsInvalidated  = "ALL_SESSIONS_INVALIDATED"
)

// AuditLog is an append-only record of a security-relevant event.
// Never mutated or deleted by the core.
type AuditLog struct {
	ID           string
	Username     string
	Action       string
	Details      string
	IPAddress    string
	UserAgent    string
	Success      bool
	ErrorMessage string
	Timestamp    time.Time
}

// AuditFilter narrows audit log queries. Zero values mean "any".
type AuditFilter struct {
	Username string
	Action   string
	Success  *bool
	From     *time.Time
	To       *time.Time
}
