package auth

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

// TOTPManager generates and verifies time-based one-time passwords.
// Standard RFC 6238 parameters: SHA-1, 30-second step, 6 digits, with the
// usual ±1 step skew tolerance that authenticator apps rely on.
type TOTPManager struct {
	issuer string
	now    func() time.Time
}

// NewTOTPManager creates a TOTP manager. The issuer appears in authenticator
// apps next to the account label.
func NewTOTPManager(issuer string) *TOTPManager {
	return &TOTPManager{
		issuer: issuer,
		now:    time.Now,
	}
}

// SetClock overrides the time source, for deterministic verification tests.
func (tm *TOTPManager) SetClock(now func() time.Time) {
	tm.now = now
}

// GenerateSecret creates a new random base32 secret and the provisioning URL
// for the given account label.
func (tm *TOTPManager) GenerateSecret(accountLabel string) (secret, provisioningURL string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountLabel,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// QRCodeDataURL renders the provisioning URL as a PNG data URL for display
// during enrollment.
func (tm *TOTPManager) QRCodeDataURL(provisioningURL string) (string, error) {
	png, err := qrcode.Encode(provisioningURL, qrcode.Medium, 200)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// VerifyCode checks a 6-digit code against the stored secret at the current
// time step, tolerating one step of clock drift either way.
func (tm *TOTPManager) VerifyCode(secret, code string) bool {
	valid, err := totp.ValidateCustom(code, secret, tm.now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}

// CodeAt computes the valid code for a secret at a given time. Used by tests
// and enrollment tooling.
func (tm *TOTPManager) CodeAt(secret string, at time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP code: %w", err)
	}
	return code, nil
}
