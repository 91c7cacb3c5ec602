package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmercier/aegis/internal/auth"
	"github.com/jmercier/aegis/internal/models"
)

// APIKeyService issues and validates programmatic credentials. Plaintext keys
// exist only in the Create response; everything afterwards works on hashes.
type APIKeyService struct {
	keys   APIKeyRepository
	users  UserRepository
	keygen *auth.APIKeyManager
	audit  *AuditService
	logger *slog.Logger
	clock  Clock
}

func NewAPIKeyService(keys APIKeyRepository, users UserRepository, keygen *auth.APIKeyManager, audit *AuditService, logger *slog.Logger) *APIKeyService {
	return &APIKeyService{
		keys:   keys,
		users:  users,
		keygen: keygen,
		audit:  audit,
		logger: logger,
		clock:  time.Now,
	}
}

func (s *APIKeyService) SetClock(clock Clock) {
	s.clock = clock
}

// Create mints a new key for the user. The returned GeneratedAPIKey carries
// the plaintext exactly once.
func (s *APIKeyService) Create(ctx context.Context, user *models.User, name, description string, expiresAt *time.Time, ipAddress, userAgent string) (*models.GeneratedAPIKey, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: key name is required", models.ErrBadRequest)
	}
	if expiresAt != nil && !expiresAt.After(s.clock()) {
		return nil, fmt.Errorf("%w: expiry must be in the future", models.ErrBadRequest)
	}

	plainKey, keyHash, keyPrefix, err := s.keygen.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate api key: %w", err)
	}

	key := &models.APIKey{
		UserID:      user.ID,
		Name:        name,
		Description: description,
		KeyHash:     keyHash,
		KeyPrefix:   keyPrefix,
		CreatedAt:   s.clock(),
		ExpiresAt:   expiresAt,
		Active:      true,
	}

	if err := s.keys.Create(ctx, key); err != nil {
		return nil, err
	}

	s.audit.LogSuccess(ctx, user.Username, models.ActionAPIKeyCreated,
		fmt.Sprintf("api key %q (%s) created", name, keyPrefix), ipAddress, userAgent)

	return &models.GeneratedAPIKey{PlainKey: plainKey, APIKey: key}, nil
}

// Authenticate resolves a plaintext key to its owning user. Revoked, expired
// and malformed keys all fail the same way so callers cannot probe key state.
func (s *APIKeyService) Authenticate(ctx context.Context, plainKey string) (*models.User, error) {
	if err := s.keygen.ValidateFormat(plainKey); err != nil {
		return nil, models.ErrUnauthorized
	}

	key, err := s.keys.GetByHash(ctx, s.keygen.Hash(plainKey))
	if err != nil {
		return nil, models.ErrUnauthorized
	}

	if !key.IsUsable(s.clock()) {
		return nil, models.ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, key.UserID)
	if err != nil {
		return nil, models.ErrUnauthorized
	}
	if !user.Enabled || user.Locked {
		return nil, models.ErrUnauthorized
	}

	// Usage stamping is best effort and off the request path.
	go func(keyID string, at time.Time) {
		stampCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.keys.UpdateLastUsed(stampCtx, keyID, at); err != nil {
			s.logger.Warn("failed to stamp api key usage", "key_id", keyID, "error", err)
		}
	}(key.ID, s.clock())

	return user, nil
}

func (s *APIKeyService) ListForUser(ctx context.Context, userID string) ([]*models.APIKey, error) {
	return s.keys.ListByUser(ctx, userID)
}

// Revoke deactivates a key. Non-admin callers may only revoke their own.
func (s *APIKeyService) Revoke(ctx context.Context, actor *models.User, keyID, ipAddress, userAgent string) error {
	key, err := s.keys.GetByID(ctx, keyID)
	if err != nil {
		return err
	}

	if key.UserID != actor.ID && !actor.HasRole(models.RoleAdmin) {
		return models.ErrForbidden
	}

	if err := s.keys.Deactivate(ctx, keyID); err != nil {
		return err
	}

	s.audit.LogSuccess(ctx, actor.Username, models.ActionAPIKeyRevoked,
		fmt.Sprintf("api key %q (%s) revoked", key.Name, key.KeyPrefix), ipAddress, userAgent)
	return nil
}

// SweepExpired deactivates keys past their expiry.
func (s *APIKeyService) SweepExpired(ctx context.Context) (int64, error) {
	return s.keys.DeactivateExpired(ctx, s.clock())
}
