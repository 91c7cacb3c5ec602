package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmercier/aegis/internal/auth"
	"github.com/jmercier/aegis/internal/config"
	pkgauth "github.com/jmercier/aegis/pkg/auth"

	"github.com/jmercier/aegis/internal/models"
)

// AuthService drives the login state machine: password check, lockout
// accounting, the optional 2FA hop, and token issuance.
type AuthService struct {
	users         UserRepository
	refreshTokens RefreshTokenRepository
	sessions      *SessionService
	passwords     *PasswordService
	tokens        *auth.TokenManager
	totp          *auth.TOTPManager
	audit         *AuditService
	cfg           config.SecurityConfig
	logger        *slog.Logger
	clock         Clock
}

func NewAuthService(
	users UserRepository,
	refreshTokens RefreshTokenRepository,
	sessions *SessionService,
	passwords *PasswordService,
	tokens *auth.TokenManager,
	totp *auth.TOTPManager,
	audit *AuditService,
	cfg config.SecurityConfig,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:         users,
		refreshTokens: refreshTokens,
		sessions:      sessions,
		passwords:     passwords,
		tokens:        tokens,
		totp:          totp,
		audit:         audit,
		cfg:           cfg,
		logger:        logger,
		clock:         time.Now,
	}
}

func (s *AuthService) SetClock(clock Clock) {
	s.clock = clock
}

// Login authenticates a username/password pair. When the account has 2FA
// enabled the result carries only a short-lived temp token; the client must
// finish with CompleteTwoFactorLogin.
func (s *AuthService) Login(ctx context.Context, username, password, ipAddress, userAgent string) (*models.AuthResult, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Same failure shape as a wrong password, so usernames
			// cannot be enumerated.
			s.audit.LogFailure(ctx, username, models.ActionLoginFailed,
				"unknown username", ipAddress, userAgent, "invalid credentials")
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if user.Locked {
		unlocked, err := s.tryAutoUnlock(ctx, user)
		if err != nil {
			return nil, err
		}
		if !unlocked {
			s.audit.LogFailure(ctx, username, models.ActionLoginFailed,
				"account locked", ipAddress, userAgent, "account locked")
			return nil, models.ErrAccountLocked
		}
	}

	if !user.Enabled {
		s.audit.LogFailure(ctx, username, models.ActionLoginFailed,
			"account disabled", ipAddress, userAgent, "account disabled")
		return nil, models.ErrAccountDisabled
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, s.handleFailedPassword(ctx, user, ipAddress, userAgent)
	}

	if user.FailedLoginAttempts > 0 {
		if err := s.users.ResetFailedAttempts(ctx, user.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to reset attempt counter",
				"username", username, "error", err)
		}
	}

	if user.TwoFactorEnabled {
		tempToken, err := s.tokens.GenerateTempToken(user)
		if err != nil {
			return nil, fmt.Errorf("failed to generate temp token: %w", err)
		}
		s.audit.LogSuccess(ctx, user.Username, models.ActionLoginSuccess,
			"password accepted, 2FA required", ipAddress, userAgent)
		return &models.AuthResult{
			Requires2FA: true,
			TempToken:   tempToken,
			User:        user,
		}, nil
	}

	return s.completeLogin(ctx, user, ipAddress, userAgent)
}

// CompleteTwoFactorLogin finishes a login started against a 2FA-enabled
// account. The temp token proves the password step already succeeded.
func (s *AuthService) CompleteTwoFactorLogin(ctx context.Context, tempToken, code, ipAddress, userAgent string) (*models.AuthResult, error) {
	username, err := s.tokens.ExtractTempUsername(tempToken)
	if err != nil {
		return nil, models.ErrTokenInvalid
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTokenInvalid
		}
		return nil, err
	}

	if user.Locked {
		return nil, models.ErrAccountLocked
	}
	if !user.Enabled {
		return nil, models.ErrAccountDisabled
	}
	if !user.TwoFactorEnabled || user.TwoFactorSecret == "" {
		return nil, models.ErrTokenInvalid
	}

	if !s.totp.VerifyCode(user.TwoFactorSecret, code) {
		s.audit.LogFailure(ctx, username, models.ActionTwoFactorFailed,
			"login verification", ipAddress, userAgent, "invalid code")
		return nil, models.ErrInvalidTOTPCode
	}

	return s.completeLogin(ctx, user, ipAddress, userAgent)
}

// RefreshAccessToken exchanges a live refresh token for a new access token.
// The refresh token itself is not rotated. An expired token found here is
// deleted rather than waiting for the sweeper.
func (s *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (*models.AuthResult, error) {
	claims, err := s.tokens.ValidateToken(refreshToken)
	if err != nil {
		return nil, models.ErrTokenInvalid
	}
	if claims.Type != models.TokenTypeRefresh {
		return nil, models.ErrTokenInvalid
	}

	stored, err := s.refreshTokens.GetByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTokenInvalid
		}
		return nil, err
	}

	if stored.Revoked {
		return nil, models.ErrTokenRevoked
	}

	if stored.IsExpired(s.clock()) {
		if err := s.refreshTokens.Delete(ctx, stored.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to delete expired refresh token",
				"token_id", stored.ID, "error", err)
		}
		return nil, models.ErrTokenInvalid
	}

	user, err := s.users.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTokenInvalid
		}
		return nil, err
	}
	if !user.Enabled || user.Locked {
		return nil, models.ErrUnauthorized
	}

	accessToken, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &models.AuthResult{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokens.AccessExpiry().Seconds()),
		User:        user,
	}, nil
}

// Logout revokes all of the user's refresh tokens and deactivates the given
// session if one is supplied.
func (s *AuthService) Logout(ctx context.Context, user *models.User, sessionToken, ipAddress, userAgent string) error {
	now := s.clock()

	if err := s.refreshTokens.RevokeAllForUser(ctx, user.ID, now); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	if sessionToken != "" {
		session, err := s.sessions.sessions.GetByToken(ctx, sessionToken)
		if err == nil && session.UserID == user.ID {
			if err := s.sessions.sessions.Deactivate(ctx, session.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
				s.logger.WarnContext(ctx, "failed to deactivate session on logout",
					"session_id", session.ID, "error", err)
			}
		}
	}

	s.audit.LogSuccess(ctx, user.Username, models.ActionLogout, "logged out", ipAddress, userAgent)
	return nil
}

// tryAutoUnlock lifts the lock when the configured duration has elapsed.
// A zero duration means locks never expire on their own.
func (s *AuthService) tryAutoUnlock(ctx context.Context, user *models.User) (bool, error) {
	if s.cfg.AccountLockDuration <= 0 || user.LockTime == nil {
		return false, nil
	}
	if s.clock().Sub(*user.LockTime) < s.cfg.AccountLockDuration {
		return false, nil
	}

	if err := s.users.Unlock(ctx, user.ID); err != nil {
		return false, err
	}

	user.Locked = false
	user.LockTime = nil
	user.FailedLoginAttempts = 0

	s.logger.InfoContext(ctx, "account auto-unlocked", "username", user.Username)
	return true, nil
}

// handleFailedPassword does the lockout accounting for a wrong password.
// Administrators never accrue lockouts so an attacker cannot deny service to
// the people who fix lockouts.
func (s *AuthService) handleFailedPassword(ctx context.Context, user *models.User, ipAddress, userAgent string) error {
	if user.HasRole(models.RoleAdmin) {
		s.audit.LogFailure(ctx, user.Username, models.ActionLoginFailed,
			"invalid password (admin, lockout exempt)", ipAddress, userAgent, "invalid credentials")
		return models.ErrInvalidCredentials
	}

	attempts, err := s.users.RecordFailedAttempt(ctx, user.ID)
	if err != nil {
		return err
	}

	if attempts >= s.cfg.MaxLoginAttempts {
		if err := s.users.Lock(ctx, user.ID, s.clock()); err != nil {
			return err
		}
		s.audit.LogFailure(ctx, user.Username, models.ActionUserLocked,
			fmt.Sprintf("locked after %d failed attempts", attempts), ipAddress, userAgent, "account locked")
		s.audit.LogFailure(ctx, user.Username, models.ActionLoginFailed,
			"invalid password", ipAddress, userAgent, "account locked")
		return models.ErrAccountLocked
	}

	remaining := s.cfg.MaxLoginAttempts - attempts
	noun := "attempts"
	if remaining == 1 {
		noun = "attempt"
	}
	detail := fmt.Sprintf("invalid password, %d %s remaining", remaining, noun)

	s.audit.LogFailure(ctx, user.Username, models.ActionLoginFailed,
		detail, ipAddress, userAgent, "invalid credentials")
	return fmt.Errorf("%w: %d %s remaining", models.ErrInvalidCredentials, remaining, noun)
}

func (s *AuthService) completeLogin(ctx context.Context, user *models.User, ipAddress, userAgent string) (*models.AuthResult, error) {
	now := s.clock()

	if s.passwords.IsExpired(user) {
		user.MustChangePassword = true
	}

	session, err := s.sessions.Establish(ctx, user, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.tokens.GenerateRefreshToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	if err := s.refreshTokens.Create(ctx, &models.RefreshToken{
		Token:     refreshToken,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.tokens.RefreshExpiry()),
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to stamp last login",
			"username", user.Username, "error", err)
	}

	s.audit.LogSuccess(ctx, user.Username, models.ActionLoginSuccess, "login", ipAddress, userAgent)

	return &models.AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionToken: session.SessionToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.AccessExpiry().Seconds()),
		User:         user,
	}, nil
}
