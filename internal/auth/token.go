package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jmercier/aegis/internal/models"
)

// TempTokenExpiry bounds the window between password verification and 2FA
// completion.
const TempTokenExpiry = 5 * time.Minute

// TokenManager signs and verifies access, refresh and temporary tokens.
// Stateless beyond the symmetric signing secret; revocation is the refresh
// token store's job.
type TokenManager struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	now           func() time.Time
}

// NewTokenManager creates a TokenManager with the given signing secret and
// token lifetimes.
func NewTokenManager(secret string, accessExpiry, refreshExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		now:           time.Now,
	}
}

// SetClock overrides the time source, for deterministic expiry tests.
func (tm *TokenManager) SetClock(now func() time.Time) {
	tm.now = now
}

// RefreshExpiry returns the configured refresh token lifetime.
func (tm *TokenManager) RefreshExpiry() time.Duration {
	return tm.refreshExpiry
}

// AccessExpiry returns the configured access token lifetime.
func (tm *TokenManager) AccessExpiry() time.Duration {
	return tm.accessExpiry
}

// GenerateAccessToken creates a short-lived access token for the user.
func (tm *TokenManager) GenerateAccessToken(user *models.User) (string, error) {
	return tm.sign(user, models.TokenTypeAccess, tm.accessExpiry)
}

// GenerateRefreshToken creates a long-lived refresh token for the user. The
// caller persists it so it can be revoked.
func (tm *TokenManager) GenerateRefreshToken(user *models.User) (string, error) {
	return tm.sign(user, models.TokenTypeRefresh, tm.refreshExpiry)
}

// GenerateTempToken creates the 5-minute token that scopes the bearer to
// completing the 2FA challenge.
func (tm *TokenManager) GenerateTempToken(user *models.User) (string, error) {
	return tm.sign(user, models.TokenTypeTemp, TempTokenExpiry)
}

func (tm *TokenManager) sign(user *models.User, tokenType string, expiry time.Duration) (string, error) {
	now := tm.now()

	claims := &models.TokenClaims{
		Type:  tokenType,
		Roles: user.RoleNames(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// ValidateToken verifies signature and expiry and returns the claims. Any
// malformed, tampered or mis-algorithm token fails with ErrTokenInvalid.
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return tm.now() }))
	if err != nil {
		return nil, models.ErrTokenInvalid
	}

	if !token.Valid || claims.Type == "" || claims.Subject == "" {
		return nil, models.ErrTokenInvalid
	}

	return claims, nil
}

// ExtractUsername returns the subject of a valid token.
func (tm *TokenManager) ExtractUsername(tokenString string) (string, error) {
	claims, err := tm.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ExtractTempUsername returns the subject of a valid temporary token. Tokens
// of any other type are rejected, so an access token can never stand in for
// the 2FA bridge.
func (tm *TokenManager) ExtractTempUsername(tokenString string) (string, error) {
	claims, err := tm.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	if claims.Type != models.TokenTypeTemp {
		return "", models.ErrTokenInvalid
	}
	return claims.Subject, nil
}

// IsValid reports whether the token verifies and belongs to the expected
// username. Revocation is not checked here.
func (tm *TokenManager) IsValid(tokenString, expectedUsername string) bool {
	claims, err := tm.ValidateToken(tokenString)
	if err != nil {
		return false
	}
	return claims.Subject == expectedUsername
}
