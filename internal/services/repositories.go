package services

import (
	"context"
	"time"

	"github.com/jmercier/aegis/internal/models"
)

// Clock is the injectable time source used by every time-sensitive service.
// Tests pin it; production uses time.Now.
type Clock func() time.Time

// UserRepository defines the interface for user data access. Counter and lock
// mutations are dedicated single-statement operations so they commit
// atomically and independently of the failing login that triggered them.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Update(ctx context.Context, user *models.User) (*models.User, error)

	// Delete removes the user after cascading removal of sessions, refresh
	// tokens and API keys, all in one transaction.
	Delete(ctx context.Context, id string) error

	// RecordFailedAttempt atomically increments the failure counter and
	// returns the new value.
	RecordFailedAttempt(ctx context.Context, id string) (int, error)
	// Lock marks the account locked at the given instant.
	Lock(ctx context.Context, id string, at time.Time) error
	// Unlock clears the lock and resets the failure counter.
	Unlock(ctx context.Context, id string) error
	ResetFailedAttempts(ctx context.Context, id string) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// UpdatePassword replaces hash and history and stamps the change.
	UpdatePassword(ctx context.Context, id, passwordHash string, history []string, changedAt time.Time, mustChange bool) error

	SetTwoFactorSecret(ctx context.Context, id, secret string) error
	SetTwoFactorEnabled(ctx context.Context, id string, enabled bool, secret string) error

	ReplaceRoles(ctx context.Context, userID string, roleIDs []string) error
}

// RefreshTokenRepository stores issued refresh tokens for revocation.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	GetByToken(ctx context.Context, token string) (*models.RefreshToken, error)
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// SessionRepository stores login sessions and enforces the concurrency cap
// atomically at creation.
type SessionRepository interface {
	// CreateWithCap inserts the session after deactivating, within the same
	// transaction, as many oldest active sessions as needed to keep the
	// per-user active count at maxActive.
	CreateWithCap(ctx context.Context, session *models.Session, maxActive int) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	GetByToken(ctx context.Context, sessionToken string) (*models.Session, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*models.Session, error)
	CountActiveByUser(ctx context.Context, userID string) (int, error)
	Touch(ctx context.Context, sessionToken string, at time.Time) error
	Deactivate(ctx context.Context, id string) error
	DeactivateAllForUser(ctx context.Context, userID string) (int64, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// APIKeyRepository stores hashed API keys.
type APIKeyRepository interface {
	Create(ctx context.Context, key *models.APIKey) error
	GetByID(ctx context.Context, id string) (*models.APIKey, error)
	GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	ListByUser(ctx context.Context, userID string) ([]*models.APIKey, error)
	UpdateLastUsed(ctx context.Context, id string, at time.Time) error
	Deactivate(ctx context.Context, id string) error
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// AuditLogRepository is the append-only store behind the audit sink.
type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, filter models.AuditFilter, limit, offset int) ([]*models.AuditLog, error)
	Count(ctx context.Context, filter models.AuditFilter) (int64, error)
	RecentByUsername(ctx context.Context, username string, limit int) ([]*models.AuditLog, error)
}

// RoleRepository stores roles and their permission sets.
type RoleRepository interface {
	Create(ctx context.Context, role *models.Role) (*models.Role, error)
	GetByID(ctx context.Context, id string) (*models.Role, error)
	GetByName(ctx context.Context, name string) (*models.Role, error)
	List(ctx context.Context) ([]*models.Role, error)
	Update(ctx context.Context, role *models.Role) (*models.Role, error)
	Delete(ctx context.Context, id string) error
}

// RegistrationRepository stores pending account requests.
type RegistrationRepository interface {
	Create(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationRequest, error)
	GetByID(ctx context.Context, id string) (*models.RegistrationRequest, error)
	List(ctx context.Context) ([]*models.RegistrationRequest, error)
	ListByStatus(ctx context.Context, status string) ([]*models.RegistrationRequest, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationRequest, error)
}
