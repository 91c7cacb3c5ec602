package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmercier/aegis/internal/config"
	"github.com/jmercier/aegis/internal/models"
	pkgauth "github.com/jmercier/aegis/pkg/auth"
)

func newPasswordFixture(t *testing.T, users *mockUserRepo, refresh *mockRefreshTokenRepo) (*PasswordService, time.Time) {
	t.Helper()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := config.SecurityConfig{
		MaxLoginAttempts:     5,
		PasswordHistoryDepth: 5,
		PasswordMaxAgeDays:   90,
	}

	logger := testLogger()
	auditSvc := NewAuditService(&mockAuditRepo{}, logger)
	auditSvc.SetClock(fixedClock(now))

	svc := NewPasswordService(users, refresh, auditSvc, cfg, logger)
	svc.SetClock(fixedClock(now))
	return svc, now
}

func TestChangePassword(t *testing.T) {
	users := &mockUserRepo{}
	refresh := &mockRefreshTokenRepo{}
	svc, now := newPasswordFixture(t, users, refresh)

	user := testUser(t, testPassword)
	users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}

	var newHash string
	var history []string
	var mustChange bool
	users.UpdatePasswordFunc = func(ctx context.Context, id, passwordHash string, h []string, changedAt time.Time, mc bool) error {
		newHash = passwordHash
		history = h
		mustChange = mc
		assert.Equal(t, now, changedAt)
		return nil
	}

	var revokedUser string
	refresh.RevokeAllForUserFunc = func(ctx context.Context, userID string, at time.Time) error {
		revokedUser = userID
		return nil
	}

	err := svc.ChangePassword(context.Background(), "alice", testPassword, "New-Password9!", "10.0.0.1", "agent")
	require.NoError(t, err)

	assert.NoError(t, pkgauth.ComparePassword(newHash, "New-Password9!"))
	require.Len(t, history, 1)
	assert.Equal(t, user.PasswordHash, history[0])
	assert.False(t, mustChange)
	assert.Equal(t, user.ID, revokedUser)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	users := &mockUserRepo{}
	svc, _ := newPasswordFixture(t, users, &mockRefreshTokenRepo{})

	user := testUser(t, testPassword)
	users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}

	err := svc.ChangePassword(context.Background(), "alice", "not-it", "New-Password9!", "10.0.0.1", "agent")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestChangePasswordRejectsWeak(t *testing.T) {
	users := &mockUserRepo{}
	svc, _ := newPasswordFixture(t, users, &mockRefreshTokenRepo{})

	user := testUser(t, testPassword)
	users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}

	err := svc.ChangePassword(context.Background(), "alice", testPassword, "weak", "10.0.0.1", "agent")
	var policyErr *pkgauth.PasswordPolicyError
	assert.ErrorAs(t, err, &policyErr)
}

func TestChangePasswordRejectsReuse(t *testing.T) {
	users := &mockUserRepo{}
	svc, _ := newPasswordFixture(t, users, &mockRefreshTokenRepo{})

	oldHash, err := pkgauth.HashPassword("Old-Password7!")
	require.NoError(t, err)

	user := testUser(t, testPassword)
	user.PasswordHistory = []string{oldHash}
	users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}

	// Reusing the current password.
	err = svc.ChangePassword(context.Background(), "alice", testPassword, testPassword, "10.0.0.1", "agent")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	// Reusing one from history.
	err = svc.ChangePassword(context.Background(), "alice", testPassword, "Old-Password7!", "10.0.0.1", "agent")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestChangePasswordTrimsHistory(t *testing.T) {
	users := &mockUserRepo{}
	svc, _ := newPasswordFixture(t, users, &mockRefreshTokenRepo{})

	user := testUser(t, testPassword)
	user.PasswordHistory = []string{"h1", "h2", "h3", "h4", "h5"}
	users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}

	var history []string
	users.UpdatePasswordFunc = func(ctx context.Context, id, passwordHash string, h []string, changedAt time.Time, mustChange bool) error {
		history = h
		return nil
	}

	err := svc.ChangePassword(context.Background(), "alice", testPassword, "New-Password9!", "10.0.0.1", "agent")
	require.NoError(t, err)

	// Current hash enters at the head, the oldest falls off.
	require.Len(t, history, 5)
	assert.Equal(t, user.PasswordHash, history[0])
	assert.Equal(t, []string{"h1", "h2", "h3", "h4"}, history[1:])
}

func TestResetMarksMustChange(t *testing.T) {
	users := &mockUserRepo{}
	svc, _ := newPasswordFixture(t, users, &mockRefreshTokenRepo{})

	user := testUser(t, testPassword)
	users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return user, nil
	}

	var mustChange bool
	users.UpdatePasswordFunc = func(ctx context.Context, id, passwordHash string, h []string, changedAt time.Time, mc bool) error {
		mustChange = mc
		return nil
	}

	err := svc.Reset(context.Background(), user.ID, "Admin-Set-Pw1!")
	require.NoError(t, err)
	assert.True(t, mustChange)
}

func TestIsExpired(t *testing.T) {
	svc, now := newPasswordFixture(t, &mockUserRepo{}, &mockRefreshTokenRepo{})

	fresh := now.Add(-30 * 24 * time.Hour)
	stale := now.Add(-91 * 24 * time.Hour)

	assert.False(t, svc.IsExpired(&models.User{PasswordChangedAt: &fresh}))
	assert.True(t, svc.IsExpired(&models.User{PasswordChangedAt: &stale}))
	assert.True(t, svc.IsExpired(&models.User{PasswordChangedAt: nil}))

	svc.cfg.PasswordMaxAgeDays = 0
	assert.False(t, svc.IsExpired(&models.User{PasswordChangedAt: &stale}))
}
