package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/jmercier/aegis/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(at time.Time) Clock {
	return func() time.Time { return at }
}

// mockUserRepo implements UserRepository with overridable functions so each
// test wires only what it touches.
type mockUserRepo struct {
	GetByIDFunc              func(ctx context.Context, id string) (*models.User, error)
	GetByUsernameFunc        func(ctx context.Context, username string) (*models.User, error)
	GetByEmailFunc           func(ctx context.Context, email string) (*models.User, error)
	ExistsByUsernameFunc     func(ctx context.Context, username string) (bool, error)
	ExistsByEmailFunc        func(ctx context.Context, email string) (bool, error)
	ListFunc                 func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateFunc               func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateFunc               func(ctx context.Context, user *models.User) (*models.User, error)
	DeleteFunc               func(ctx context.Context, id string) error
	RecordFailedAttemptFunc  func(ctx context.Context, id string) (int, error)
	LockFunc                 func(ctx context.Context, id string, at time.Time) error
	UnlockFunc               func(ctx context.Context, id string) error
	ResetFailedAttemptsFunc  func(ctx context.Context, id string) error
	SetEnabledFunc           func(ctx context.Context, id string, enabled bool) error
	UpdateLastLoginFunc      func(ctx context.Context, id string, at time.Time) error
	UpdatePasswordFunc       func(ctx context.Context, id, passwordHash string, history []string, changedAt time.Time, mustChange bool) error
	SetTwoFactorSecretFunc   func(ctx context.Context, id, secret string) error
	SetTwoFactorEnabledFunc  func(ctx context.Context, id string, enabled bool, secret string) error
	ReplaceRolesFunc         func(ctx context.Context, userID string, roleIDs []string) error
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return m.GetByIDFunc(ctx, id)
}
func (m *mockUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return m.GetByUsernameFunc(ctx, username)
}
func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.GetByEmailFunc(ctx, email)
}
func (m *mockUserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return m.ExistsByUsernameFunc(ctx, username)
}
func (m *mockUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return m.ExistsByEmailFunc(ctx, email)
}
func (m *mockUserRepo) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	return m.ListFunc(ctx, limit, offset)
}
func (m *mockUserRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	return m.CreateFunc(ctx, user)
}
func (m *mockUserRepo) Update(ctx context.Context, user *models.User) (*models.User, error) {
	return m.UpdateFunc(ctx, user)
}
func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	return m.DeleteFunc(ctx, id)
}
func (m *mockUserRepo) RecordFailedAttempt(ctx context.Context, id string) (int, error) {
	return m.RecordFailedAttemptFunc(ctx, id)
}
func (m *mockUserRepo) Lock(ctx context.Context, id string, at time.Time) error {
	return m.LockFunc(ctx, id, at)
}
func (m *mockUserRepo) Unlock(ctx context.Context, id string) error {
	return m.UnlockFunc(ctx, id)
}
func (m *mockUserRepo) ResetFailedAttempts(ctx context.Context, id string) error {
	if m.ResetFailedAttemptsFunc == nil {
		return nil
	}
	return m.ResetFailedAttemptsFunc(ctx, id)
}
func (m *mockUserRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return m.SetEnabledFunc(ctx, id, enabled)
}
func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if m.UpdateLastLoginFunc == nil {
		return nil
	}
	return m.UpdateLastLoginFunc(ctx, id, at)
}
func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, history []string, changedAt time.Time, mustChange bool) error {
	return m.UpdatePasswordFunc(ctx, id, passwordHash, history, changedAt, mustChange)
}
func (m *mockUserRepo) SetTwoFactorSecret(ctx context.Context, id, secret string) error {
	return m.SetTwoFactorSecretFunc(ctx, id, secret)
}
func (m *mockUserRepo) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool, secret string) error {
	return m.SetTwoFactorEnabledFunc(ctx, id, enabled, secret)
}
func (m *mockUserRepo) ReplaceRoles(ctx context.Context, userID string, roleIDs []string) error {
	return m.ReplaceRolesFunc(ctx, userID, roleIDs)
}

type mockRefreshTokenRepo struct {
	CreateFunc           func(ctx context.Context, token *models.RefreshToken) error
	GetByTokenFunc       func(ctx context.Context, token string) (*models.RefreshToken, error)
	RevokeAllForUserFunc func(ctx context.Context, userID string, at time.Time) error
	DeleteFunc           func(ctx context.Context, id string) error
	DeleteExpiredFunc    func(ctx context.Context, before time.Time) (int64, error)
}

func (m *mockRefreshTokenRepo) Create(ctx context.Context, token *models.RefreshToken) error {
	return m.CreateFunc(ctx, token)
}
func (m *mockRefreshTokenRepo) GetByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	return m.GetByTokenFunc(ctx, token)
}
func (m *mockRefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	if m.RevokeAllForUserFunc == nil {
		return nil
	}
	return m.RevokeAllForUserFunc(ctx, userID, at)
}
func (m *mockRefreshTokenRepo) Delete(ctx context.Context, id string) error {
	return m.DeleteFunc(ctx, id)
}
func (m *mockRefreshTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return m.DeleteExpiredFunc(ctx, before)
}

type mockSessionRepo struct {
	CreateWithCapFunc        func(ctx context.Context, session *models.Session, maxActive int) error
	GetByIDFunc              func(ctx context.Context, id string) (*models.Session, error)
	GetByTokenFunc           func(ctx context.Context, sessionToken string) (*models.Session, error)
	ListActiveByUserFunc     func(ctx context.Context, userID string) ([]*models.Session, error)
	CountActiveByUserFunc    func(ctx context.Context, userID string) (int, error)
	TouchFunc                func(ctx context.Context, sessionToken string, at time.Time) error
	DeactivateFunc           func(ctx context.Context, id string) error
	DeactivateAllForUserFunc func(ctx context.Context, userID string) (int64, error)
	DeactivateExpiredFunc    func(ctx context.Context, now time.Time) (int64, error)
}

func (m *mockSessionRepo) CreateWithCap(ctx context.Context, session *models.Session, maxActive int) error {
	return m.CreateWithCapFunc(ctx, session, maxActive)
}
func (m *mockSessionRepo) GetByID(ctx context.Context, id string) (*models.Session, error) {
	return m.GetByIDFunc(ctx, id)
}
func (m *mockSessionRepo) GetByToken(ctx context.Context, sessionToken string) (*models.Session, error) {
	return m.GetByTokenFunc(ctx, sessionToken)
}
func (m *mockSessionRepo) ListActiveByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	return m.ListActiveByUserFunc(ctx, userID)
}
func (m *mockSessionRepo) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	return m.CountActiveByUserFunc(ctx, userID)
}
func (m *mockSessionRepo) Touch(ctx context.Context, sessionToken string, at time.Time) error {
	return m.TouchFunc(ctx, sessionToken, at)
}
func (m *mockSessionRepo) Deactivate(ctx context.Context, id string) error {
	return m.DeactivateFunc(ctx, id)
}
func (m *mockSessionRepo) DeactivateAllForUser(ctx context.Context, userID string) (int64, error) {
	return m.DeactivateAllForUserFunc(ctx, userID)
}
func (m *mockSessionRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	return m.DeactivateExpiredFunc(ctx, now)
}

type mockAPIKeyRepo struct {
	CreateFunc            func(ctx context.Context, key *models.APIKey) error
	GetByIDFunc           func(ctx context.Context, id string) (*models.APIKey, error)
	GetByHashFunc         func(ctx context.Context, keyHash string) (*models.APIKey, error)
	ListByUserFunc        func(ctx context.Context, userID string) ([]*models.APIKey, error)
	UpdateLastUsedFunc    func(ctx context.Context, id string, at time.Time) error
	DeactivateFunc        func(ctx context.Context, id string) error
	DeactivateExpiredFunc func(ctx context.Context, now time.Time) (int64, error)
}

func (m *mockAPIKeyRepo) Create(ctx context.Context, key *models.APIKey) error {
	return m.CreateFunc(ctx, key)
}
func (m *mockAPIKeyRepo) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	return m.GetByIDFunc(ctx, id)
}
func (m *mockAPIKeyRepo) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	return m.GetByHashFunc(ctx, keyHash)
}
func (m *mockAPIKeyRepo) ListByUser(ctx context.Context, userID string) ([]*models.APIKey, error) {
	return m.ListByUserFunc(ctx, userID)
}
func (m *mockAPIKeyRepo) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	if m.UpdateLastUsedFunc == nil {
		return nil
	}
	return m.UpdateLastUsedFunc(ctx, id, at)
}
func (m *mockAPIKeyRepo) Deactivate(ctx context.Context, id string) error {
	return m.DeactivateFunc(ctx, id)
}
func (m *mockAPIKeyRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	return m.DeactivateExpiredFunc(ctx, now)
}

// mockAuditRepo records every entry so tests can assert on the trail.
type mockAuditRepo struct {
	entries []*models.AuditLog

	ListFunc             func(ctx context.Context, filter models.AuditFilter, limit, offset int) ([]*models.AuditLog, error)
	CountFunc            func(ctx context.Context, filter models.AuditFilter) (int64, error)
	RecentByUsernameFunc func(ctx context.Context, username string, limit int) ([]*models.AuditLog, error)
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	m.entries = append(m.entries, entry)
	return nil
}
func (m *mockAuditRepo) List(ctx context.Context, filter models.AuditFilter, limit, offset int) ([]*models.AuditLog, error) {
	return m.ListFunc(ctx, filter, limit, offset)
}
func (m *mockAuditRepo) Count(ctx context.Context, filter models.AuditFilter) (int64, error) {
	return m.CountFunc(ctx, filter)
}
func (m *mockAuditRepo) RecentByUsername(ctx context.Context, username string, limit int) ([]*models.AuditLog, error) {
	return m.RecentByUsernameFunc(ctx, username, limit)
}

func (m *mockAuditRepo) actions() []string {
	actions := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		actions = append(actions, e.Action)
	}
	return actions
}

type mockRoleRepo struct {
	CreateFunc    func(ctx context.Context, role *models.Role) (*models.Role, error)
	GetByIDFunc   func(ctx context.Context, id string) (*models.Role, error)
	GetByNameFunc func(ctx context.Context, name string) (*models.Role, error)
	ListFunc      func(ctx context.Context) ([]*models.Role, error)
	UpdateFunc    func(ctx context.Context, role *models.Role) (*models.Role, error)
	DeleteFunc    func(ctx context.Context, id string) error
}

func (m *mockRoleRepo) Create(ctx context.Context, role *models.Role) (*models.Role, error) {
	return m.CreateFunc(ctx, role)
}
func (m *mockRoleRepo) GetByID(ctx context.Context, id string) (*models.Role, error) {
	return m.GetByIDFunc(ctx, id)
}
func (m *mockRoleRepo) GetByName(ctx context.Context, name string) (*models.Role, error) {
	return m.GetByNameFunc(ctx, name)
}
func (m *mockRoleRepo) List(ctx context.Context) ([]*models.Role, error) {
	return m.ListFunc(ctx)
}
func (m *mockRoleRepo) Update(ctx context.Context, role *models.Role) (*models.Role, error) {
	return m.UpdateFunc(ctx, role)
}
func (m *mockRoleRepo) Delete(ctx context.Context, id string) error {
	return m.DeleteFunc(ctx, id)
}

type mockRegistrationRepo struct {
	CreateFunc        func(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationRequest, error)
	GetByIDFunc       func(ctx context.Context, id string) (*models.RegistrationRequest, error)
	ListFunc          func(ctx context.Context) ([]*models.RegistrationRequest, error)
	ListByStatusFunc  func(ctx context.Context, status string) ([]*models.RegistrationRequest, error)
	ExistsByEmailFunc func(ctx context.Context, email string) (bool, error)
	UpdateFunc        func(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationRequest, error)
}

func (m *mockRegistrationRepo) Create(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationRequest, error) {
	return m.CreateFunc(ctx, req)
}
func (m *mockRegistrationRepo) GetByID(ctx context.Context, id string) (*models.RegistrationRequest, error) {
	return m.GetByIDFunc(ctx, id)
}
func (m *mockRegistrationRepo) List(ctx context.Context) ([]*models.RegistrationRequest, error) {
	return m.ListFunc(ctx)
}
func (m *mockRegistrationRepo) ListByStatus(ctx context.Context, status string) ([]*models.RegistrationRequest, error) {
	return m.ListByStatusFunc(ctx, status)
}
func (m *mockRegistrationRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return m.ExistsByEmailFunc(ctx, email)
}
func (m *mockRegistrationRepo) Update(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationRequest, error) {
	return m.UpdateFunc(ctx, req)
}

type mockEmailService struct {
	WelcomeFunc   func(ctx context.Context, to, username, temporaryPassword string) error
	RejectionFunc func(ctx context.Context, to, reason string) error
}

func (m *mockEmailService) SendWelcomeEmail(ctx context.Context, to, username, temporaryPassword string) error {
	if m.WelcomeFunc == nil {
		return nil
	}
	return m.WelcomeFunc(ctx, to, username, temporaryPassword)
}
func (m *mockEmailService) SendRejectionEmail(ctx context.Context, to, reason string) error {
	if m.RejectionFunc == nil {
		return nil
	}
	return m.RejectionFunc(ctx, to, reason)
}
