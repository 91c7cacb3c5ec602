package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmercier/aegis/internal/config"
	"github.com/jmercier/aegis/internal/models"
	"github.com/jmercier/aegis/pkg/auth"
)

// PasswordService owns credential strength, reuse and aging rules.
type PasswordService struct {
	users         UserRepository
	refreshTokens RefreshTokenRepository
	audit         *AuditService
	cfg           config.SecurityConfig
	logger        *slog.Logger
	clock         Clock
}

func NewPasswordService(users UserRepository, refreshTokens RefreshTokenRepository, audit *AuditService, cfg config.SecurityConfig, logger *slog.Logger) *PasswordService {
	return &PasswordService{
		users:         users,
		refreshTokens: refreshTokens,
		audit:         audit,
		cfg:           cfg,
		logger:        logger,
		clock:         time.Now,
	}
}

func (s *PasswordService) SetClock(clock Clock) {
	s.clock = clock
}

// ValidateStrength checks length and character class rules and reports every
// violation at once.
func (s *PasswordService) ValidateStrength(password string) error {
	return auth.ValidatePassword(password)
}

// IsReused reports whether the candidate matches the current password or any
// retained previous hash.
func (s *PasswordService) IsReused(user *models.User, password string) bool {
	if auth.ComparePassword(user.PasswordHash, password) == nil {
		return true
	}
	for _, oldHash := range user.PasswordHistory {
		if auth.ComparePassword(oldHash, password) == nil {
			return true
		}
	}
	return false
}

// IsExpired reports whether the password is older than the configured maximum
// age. A zero max age disables expiry; a user with no change timestamp is
// treated as expired so bootstrap credentials get rotated.
func (s *PasswordService) IsExpired(user *models.User) bool {
	if s.cfg.PasswordMaxAgeDays <= 0 {
		return false
	}
	if user.PasswordChangedAt == nil {
		return true
	}
	maxAge := time.Duration(s.cfg.PasswordMaxAgeDays) * 24 * time.Hour
	return s.clock().Sub(*user.PasswordChangedAt) > maxAge
}

// ChangePassword rotates the user's own password after verifying the current
// one. All refresh tokens are revoked so stolen tokens die with the old
// credential.
func (s *PasswordService) ChangePassword(ctx context.Context, username, currentPassword, newPassword, ipAddress, userAgent string) error {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}

	if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		s.audit.LogFailure(ctx, username, models.ActionPasswordChangeFailed,
			"current password mismatch", ipAddress, userAgent, "invalid credentials")
		return models.ErrInvalidCredentials
	}

	if err := s.applyNewPassword(ctx, user, newPassword, false); err != nil {
		var policyErr *auth.PasswordPolicyError
		if errors.As(err, &policyErr) || errors.Is(err, models.ErrBadRequest) {
			s.audit.LogFailure(ctx, username, models.ActionPasswordChangeFailed,
				"policy violation", ipAddress, userAgent, err.Error())
		}
		return err
	}

	s.audit.LogSuccess(ctx, username, models.ActionPasswordChanged, "password changed", ipAddress, userAgent)
	return nil
}

// Reset sets a new password on behalf of an administrator. The user must
// change it at next login.
func (s *PasswordService) Reset(ctx context.Context, userID, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.applyNewPassword(ctx, user, newPassword, true)
}

func (s *PasswordService) applyNewPassword(ctx context.Context, user *models.User, newPassword string, mustChange bool) error {
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}

	if s.IsReused(user, newPassword) {
		return fmt.Errorf("%w: password matches one of the last %d passwords",
			models.ErrBadRequest, s.cfg.PasswordHistoryDepth)
	}

	newHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	history := append([]string{user.PasswordHash}, user.PasswordHistory...)
	if len(history) > s.cfg.PasswordHistoryDepth {
		history = history[:s.cfg.PasswordHistoryDepth]
	}

	now := s.clock()
	if err := s.users.UpdatePassword(ctx, user.ID, newHash, history, now, mustChange); err != nil {
		return err
	}

	if err := s.refreshTokens.RevokeAllForUser(ctx, user.ID, now); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke refresh tokens after password change",
			"user_id", user.ID, "error", err)
	}

	return nil
}
