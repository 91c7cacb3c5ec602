package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmercier/aegis/internal/auth"
	"github.com/jmercier/aegis/internal/config"
	"github.com/jmercier/aegis/internal/models"
	pkgauth "github.com/jmercier/aegis/pkg/auth"
)

const testPassword = "Correct-Horse1!"

type authFixture struct {
	svc      *AuthService
	users    *mockUserRepo
	refresh  *mockRefreshTokenRepo
	sessions *mockSessionRepo
	audit    *mockAuditRepo
	tokens   *auth.TokenManager
	totp     *auth.TOTPManager
	cfg      config.SecurityConfig
	now      time.Time
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := config.SecurityConfig{
		MaxLoginAttempts:      5,
		AccountLockDuration:   30 * time.Minute,
		MaxConcurrentSessions: 3,
		SessionDuration:       24 * time.Hour,
		PasswordHistoryDepth:  5,
		PasswordMaxAgeDays:    90,
	}

	users := &mockUserRepo{}
	refresh := &mockRefreshTokenRepo{
		CreateFunc: func(ctx context.Context, token *models.RefreshToken) error { return nil },
	}
	sessions := &mockSessionRepo{
		CreateWithCapFunc: func(ctx context.Context, session *models.Session, maxActive int) error {
			return nil
		},
	}
	auditRepo := &mockAuditRepo{}

	logger := testLogger()
	auditSvc := NewAuditService(auditRepo, logger)
	auditSvc.SetClock(fixedClock(now))

	sessionSvc := NewSessionService(sessions, auditSvc, cfg, logger)
	sessionSvc.SetClock(fixedClock(now))

	passwordSvc := NewPasswordService(users, refresh, auditSvc, cfg, logger)
	passwordSvc.SetClock(fixedClock(now))

	tokens := auth.NewTokenManager("test-secret-that-is-long-enough", time.Hour, 7*24*time.Hour)
	tokens.SetClock(fixedClock(now))

	totp := auth.NewTOTPManager("Aegis")
	totp.SetClock(fixedClock(now))

	svc := NewAuthService(users, refresh, sessionSvc, passwordSvc, tokens, totp, auditSvc, cfg, logger)
	svc.SetClock(fixedClock(now))

	return &authFixture{
		svc:      svc,
		users:    users,
		refresh:  refresh,
		sessions: sessions,
		audit:    auditRepo,
		tokens:   tokens,
		totp:     totp,
		cfg:      cfg,
		now:      now,
	}
}

func testUser(t *testing.T, password string) *models.User {
	t.Helper()

	hash, err := pkgauth.HashPassword(password)
	require.NoError(t, err)

	changed := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	return &models.User{
		ID:                "user-1",
		Username:          "alice",
		Email:             "alice@example.com",
		PasswordHash:      hash,
		Enabled:           true,
		PasswordChangedAt: &changed,
		Roles:             []*models.Role{{ID: "r1", Name: models.RoleUser, Active: true}},
	}
}

func TestLoginSuccess(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)

	var storedRefresh *models.RefreshToken
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}
	f.refresh.CreateFunc = func(ctx context.Context, token *models.RefreshToken) error {
		storedRefresh = token
		return nil
	}

	result, err := f.svc.Login(context.Background(), "alice", testPassword, "10.0.0.1", "test-agent")
	require.NoError(t, err)

	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.NotEmpty(t, result.SessionToken)
	assert.Equal(t, "Bearer", result.TokenType)
	assert.Equal(t, int64(3600), result.ExpiresIn)
	assert.False(t, result.Requires2FA)

	require.NotNil(t, storedRefresh)
	assert.Equal(t, result.RefreshToken, storedRefresh.Token)
	assert.Equal(t, f.now.Add(7*24*time.Hour), storedRefresh.ExpiresAt)

	claims, err := f.tokens.ValidateToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.TokenTypeAccess, claims.Type)
	assert.Equal(t, "alice", claims.Subject)

	assert.Contains(t, f.audit.actions(), models.ActionLoginSuccess)
}

func TestLoginUnknownUsername(t *testing.T) {
	f := newAuthFixture(t)
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return nil, models.ErrNotFound
	}

	_, err := f.svc.Login(context.Background(), "ghost", "whatever", "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Contains(t, f.audit.actions(), models.ActionLoginFailed)
}

func TestLoginWrongPasswordCountsAttempt(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)

	var recorded bool
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}
	f.users.RecordFailedAttemptFunc = func(ctx context.Context, id string) (int, error) {
		recorded = true
		return 2, nil
	}

	_, err := f.svc.Login(context.Background(), "alice", "wrong", "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.ErrorContains(t, err, "3 attempts remaining")
	assert.True(t, recorded)
}

func TestLoginLastAttemptSingular(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)

	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}
	f.users.RecordFailedAttemptFunc = func(ctx context.Context, id string) (int, error) {
		return 4, nil
	}

	_, err := f.svc.Login(context.Background(), "alice", "wrong", "10.0.0.1", "test-agent")
	assert.ErrorContains(t, err, "1 attempt remaining")
}

func TestLoginFifthFailureLocks(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)

	var lockedAt *time.Time
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}
	f.users.RecordFailedAttemptFunc = func(ctx context.Context, id string) (int, error) {
		return 5, nil
	}
	f.users.LockFunc = func(ctx context.Context, id string, at time.Time) error {
		lockedAt = &at
		return nil
	}

	_, err := f.svc.Login(context.Background(), "alice", "wrong", "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrAccountLocked)
	require.NotNil(t, lockedAt)
	assert.Equal(t, f.now, *lockedAt)
	assert.Contains(t, f.audit.actions(), models.ActionUserLocked)
}

func TestLoginAdminExemptFromLockout(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)
	user.Roles = []*models.Role{{ID: "r-admin", Name: models.RoleAdmin, Active: true}}

	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}
	f.users.RecordFailedAttemptFunc = func(ctx context.Context, id string) (int, error) {
		t.Fatal("admin failure must not be counted")
		return 0, nil
	}

	_, err := f.svc.Login(context.Background(), "alice", "wrong", "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestLoginLockedAccountRejected(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)
	lockTime := f.now.Add(-10 * time.Minute)
	user.Locked = true
	user.LockTime = &lockTime

	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}

	// Even the right password is rejected while the lock holds.
	_, err := f.svc.Login(context.Background(), "alice", testPassword, "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrAccountLocked)
}

func TestLoginAutoUnlockAfterDuration(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)
	lockTime := f.now.Add(-31 * time.Minute)
	user.Locked = true
	user.LockTime = &lockTime
	user.FailedLoginAttempts = 5

	var unlocked bool
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}
	f.users.UnlockFunc = func(ctx context.Context, id string) error {
		unlocked = true
		return nil
	}

	result, err := f.svc.Login(context.Background(), "alice", testPassword, "10.0.0.1", "test-agent")
	require.NoError(t, err)
	assert.True(t, unlocked)
	assert.NotEmpty(t, result.AccessToken)
}

func TestLoginNoAutoUnlockWhenDurationZero(t *testing.T) {
	f := newAuthFixture(t)
	f.svc.cfg.AccountLockDuration = 0

	user := testUser(t, testPassword)
	lockTime := f.now.Add(-100 * 24 * time.Hour)
	user.Locked = true
	user.LockTime = &lockTime

	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}

	_, err := f.svc.Login(context.Background(), "alice", testPassword, "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrAccountLocked)
}

func TestLoginDisabledAccount(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)
	user.Enabled = false

	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}

	_, err := f.svc.Login(context.Background(), "alice", testPassword, "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrAccountDisabled)
}

func TestLoginWith2FAReturnsTempToken(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)
	user.TwoFactorEnabled = true
	user.TwoFactorSecret = "JBSWY3DPEHPK3PXP"

	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}
	f.sessions.CreateWithCapFunc = func(ctx context.Context, session *models.Session, maxActive int) error {
		t.Fatal("no session before 2FA completes")
		return nil
	}

	result, err := f.svc.Login(context.Background(), "alice", testPassword, "10.0.0.1", "test-agent")
	require.NoError(t, err)

	assert.True(t, result.Requires2FA)
	assert.NotEmpty(t, result.TempToken)
	assert.Empty(t, result.AccessToken)
	assert.Empty(t, result.RefreshToken)

	username, err := f.tokens.ExtractTempUsername(result.TempToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)

	// The password step is a successful login in its own right and must
	// show up in the trail even though the session waits on the code.
	assert.Contains(t, f.audit.actions(), models.ActionLoginSuccess)
}

func TestCompleteTwoFactorLogin(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)

	secret, _, err := f.totp.GenerateSecret("alice")
	require.NoError(t, err)
	user.TwoFactorEnabled = true
	user.TwoFactorSecret = secret

	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}

	tempToken, err := f.tokens.GenerateTempToken(user)
	require.NoError(t, err)

	code, err := f.totp.CodeAt(secret, f.now)
	require.NoError(t, err)

	result, err := f.svc.CompleteTwoFactorLogin(context.Background(), tempToken, code, "10.0.0.1", "test-agent")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Contains(t, f.audit.actions(), models.ActionLoginSuccess)
}

func TestCompleteTwoFactorLoginBadCode(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)

	secret, _, err := f.totp.GenerateSecret("alice")
	require.NoError(t, err)
	user.TwoFactorEnabled = true
	user.TwoFactorSecret = secret

	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}

	tempToken, err := f.tokens.GenerateTempToken(user)
	require.NoError(t, err)

	_, err = f.svc.CompleteTwoFactorLogin(context.Background(), tempToken, "000000", "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrInvalidTOTPCode)
	assert.Contains(t, f.audit.actions(), models.ActionTwoFactorFailed)
}

func TestCompleteTwoFactorRejectsAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)

	accessToken, err := f.tokens.GenerateAccessToken(user)
	require.NoError(t, err)

	_, err = f.svc.CompleteTwoFactorLogin(context.Background(), accessToken, "123456", "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestRefreshAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)

	refreshToken, err := f.tokens.GenerateRefreshToken(user)
	require.NoError(t, err)

	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}
	f.refresh.GetByTokenFunc = func(ctx context.Context, token string) (*models.RefreshToken, error) {
		return &models.RefreshToken{
			ID:        "rt-1",
			Token:     token,
			UserID:    user.ID,
			ExpiresAt: f.now.Add(time.Hour),
		}, nil
	}

	result, err := f.svc.RefreshAccessToken(context.Background(), refreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	// The refresh token is never rotated on use.
	assert.Empty(t, result.RefreshToken)
}

func TestRefreshRejectsRevokedToken(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)

	refreshToken, err := f.tokens.GenerateRefreshToken(user)
	require.NoError(t, err)

	f.refresh.GetByTokenFunc = func(ctx context.Context, token string) (*models.RefreshToken, error) {
		return &models.RefreshToken{
			ID:        "rt-1",
			Token:     token,
			UserID:    user.ID,
			ExpiresAt: f.now.Add(time.Hour),
			Revoked:   true,
		}, nil
	}

	_, err = f.svc.RefreshAccessToken(context.Background(), refreshToken)
	assert.ErrorIs(t, err, models.ErrTokenRevoked)
}

func TestRefreshDeletesExpiredToken(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)

	refreshToken, err := f.tokens.GenerateRefreshToken(user)
	require.NoError(t, err)

	var deletedID string
	f.refresh.GetByTokenFunc = func(ctx context.Context, token string) (*models.RefreshToken, error) {
		return &models.RefreshToken{
			ID:        "rt-1",
			Token:     token,
			UserID:    user.ID,
			ExpiresAt: f.now.Add(-time.Minute),
		}, nil
	}
	f.refresh.DeleteFunc = func(ctx context.Context, id string) error {
		deletedID = id
		return nil
	}

	_, err = f.svc.RefreshAccessToken(context.Background(), refreshToken)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
	assert.Equal(t, "rt-1", deletedID)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)

	accessToken, err := f.tokens.GenerateAccessToken(user)
	require.NoError(t, err)

	_, err = f.svc.RefreshAccessToken(context.Background(), accessToken)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)

	refreshToken, err := f.tokens.GenerateRefreshToken(user)
	require.NoError(t, err)

	f.refresh.GetByTokenFunc = func(ctx context.Context, token string) (*models.RefreshToken, error) {
		return nil, models.ErrNotFound
	}

	_, err = f.svc.RefreshAccessToken(context.Background(), refreshToken)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestLogoutRevokesRefreshTokens(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)

	var revokedUser string
	f.refresh.RevokeAllForUserFunc = func(ctx context.Context, userID string, at time.Time) error {
		revokedUser = userID
		return nil
	}
	f.sessions.GetByTokenFunc = func(ctx context.Context, sessionToken string) (*models.Session, error) {
		return &models.Session{ID: "s-1", UserID: user.ID, SessionToken: sessionToken, Active: true}, nil
	}

	var deactivated string
	f.sessions.DeactivateFunc = func(ctx context.Context, id string) error {
		deactivated = id
		return nil
	}

	err := f.svc.Logout(context.Background(), user, "session-token", "10.0.0.1", "test-agent")
	require.NoError(t, err)
	assert.Equal(t, user.ID, revokedUser)
	assert.Equal(t, "s-1", deactivated)
	assert.Contains(t, f.audit.actions(), models.ActionLogout)
}

func TestLoginPasswordExpiredForcesChange(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)
	changed := f.now.Add(-91 * 24 * time.Hour)
	user.PasswordChangedAt = &changed

	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}

	result, err := f.svc.Login(context.Background(), "alice", testPassword, "10.0.0.1", "test-agent")
	require.NoError(t, err)
	assert.True(t, result.User.MustChangePassword)
}

func TestLoginUsesConfiguredSessionCap(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, testPassword)

	var capSeen int
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}
	f.sessions.CreateWithCapFunc = func(ctx context.Context, session *models.Session, maxActive int) error {
		capSeen = maxActive
		return nil
	}

	_, err := f.svc.Login(context.Background(), "alice", testPassword, "10.0.0.1", "test-agent")
	require.NoError(t, err)
	assert.Equal(t, 3, capSeen)
}
