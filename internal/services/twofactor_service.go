package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmercier/aegis/internal/auth"
	"github.com/jmercier/aegis/internal/models"
	pkgauth "github.com/jmercier/aegis/pkg/auth"
)

// EnrollmentSetup is handed to the user exactly once at enrollment start.
type EnrollmentSetup struct {
	Secret          string
	ProvisioningURL string
	QRCodeDataURL   string
}

// TwoFactorService manages TOTP enrollment and verification.
type TwoFactorService struct {
	users  UserRepository
	totp   *auth.TOTPManager
	audit  *AuditService
	logger *slog.Logger
}

func NewTwoFactorService(users UserRepository, totp *auth.TOTPManager, audit *AuditService, logger *slog.Logger) *TwoFactorService {
	return &TwoFactorService{
		users:  users,
		totp:   totp,
		audit:  audit,
		logger: logger,
	}
}

// BeginEnrollment generates a fresh secret and stores it unconfirmed. The
// caller must re-present their password. The secret only becomes active once
// the user proves possession via ConfirmEnrollment; restarting enrollment
// replaces any earlier candidate.
func (s *TwoFactorService) BeginEnrollment(ctx context.Context, username, password, ipAddress, userAgent string) (*EnrollmentSetup, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.audit.LogFailure(ctx, username, models.ActionTwoFactorSetupInitiated,
			"enrollment request", ipAddress, userAgent, "password mismatch")
		return nil, models.ErrInvalidCredentials
	}

	if user.TwoFactorEnabled {
		return nil, fmt.Errorf("%w: two-factor authentication is already enabled", models.ErrConflict)
	}

	secret, provisioningURL, err := s.totp.GenerateSecret(user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp secret: %w", err)
	}

	qrCode, err := s.totp.QRCodeDataURL(provisioningURL)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code: %w", err)
	}

	if err := s.users.SetTwoFactorSecret(ctx, user.ID, secret); err != nil {
		return nil, err
	}

	s.audit.LogSuccess(ctx, username, models.ActionTwoFactorSetupInitiated,
		"totp enrollment started", ipAddress, userAgent)

	return &EnrollmentSetup{
		Secret:          secret,
		ProvisioningURL: provisioningURL,
		QRCodeDataURL:   qrCode,
	}, nil
}

// ConfirmEnrollment activates 2FA once the user submits a valid code for the
// pending secret.
func (s *TwoFactorService) ConfirmEnrollment(ctx context.Context, username, code, ipAddress, userAgent string) error {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}

	if user.TwoFactorEnabled {
		return fmt.Errorf("%w: two-factor authentication is already enabled", models.ErrConflict)
	}
	if user.TwoFactorSecret == "" {
		return fmt.Errorf("%w: no pending enrollment", models.ErrBadRequest)
	}

	if !s.totp.VerifyCode(user.TwoFactorSecret, code) {
		s.audit.LogFailure(ctx, username, models.ActionTwoFactorFailed,
			"enrollment confirmation", ipAddress, userAgent, "invalid code")
		return models.ErrInvalidTOTPCode
	}

	if err := s.users.SetTwoFactorEnabled(ctx, user.ID, true, user.TwoFactorSecret); err != nil {
		return err
	}

	s.audit.LogSuccess(ctx, username, models.ActionTwoFactorEnabled,
		"totp enrollment confirmed", ipAddress, userAgent)
	return nil
}

// Disable turns 2FA off. The caller must re-present their password so a
// hijacked session cannot silently strip the second factor.
func (s *TwoFactorService) Disable(ctx context.Context, username, password, ipAddress, userAgent string) error {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}

	if !user.TwoFactorEnabled {
		return fmt.Errorf("%w: two-factor authentication is not enabled", models.ErrBadRequest)
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.audit.LogFailure(ctx, username, models.ActionTwoFactorFailed,
			"disable request", ipAddress, userAgent, "password mismatch")
		return models.ErrInvalidCredentials
	}

	if err := s.users.SetTwoFactorEnabled(ctx, user.ID, false, ""); err != nil {
		return err
	}

	s.audit.LogSuccess(ctx, username, models.ActionTwoFactorDisabled,
		"totp disabled", ipAddress, userAgent)
	return nil
}
