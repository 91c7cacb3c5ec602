package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	apiKeyPrefix    = "sk_"
	apiKeyRandomLen = 32 // bytes of entropy before encoding
	apiKeyDisplay   = 10 // prefix characters kept for display
)

// APIKeyManager generates API key secrets and their storable digests.
// The plaintext key is sk_<base64url(32 random bytes)>; only the SHA-256
// digest is ever stored.
type APIKeyManager struct{}

func NewAPIKeyManager() *APIKeyManager {
	return &APIKeyManager{}
}

// Generate returns a new plaintext key, its digest and its display prefix.
func (m *APIKeyManager) Generate() (plainKey, keyHash, keyPrefix string, err error) {
	randomBytes := make([]byte, apiKeyRandomLen)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate api key: %w", err)
	}

	plainKey = apiKeyPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	keyHash = m.Hash(plainKey)
	keyPrefix = plainKey[:apiKeyDisplay]
	return plainKey, keyHash, keyPrefix, nil
}

// Hash computes the storable digest of a plaintext key.
func (m *APIKeyManager) Hash(plainKey string) string {
	sum := sha256.Sum256([]byte(plainKey))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ValidateFormat rejects inputs that cannot be a key issued by this manager,
// before any storage lookup.
func (m *APIKeyManager) ValidateFormat(plainKey string) error {
	if !strings.HasPrefix(plainKey, apiKeyPrefix) {
		return errors.New("invalid api key format")
	}
	if len(plainKey) != len(apiKeyPrefix)+base64.RawURLEncoding.EncodedLen(apiKeyRandomLen) {
		return errors.New("invalid api key format")
	}
	return nil
}
