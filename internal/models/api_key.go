package models

import "time"

// APIKey is a long-lived machine credential. Only a one-way digest of the
// secret is stored; the plaintext is shown once at creation.
type APIKey struct {
	ID          string
	UserID      string
	Name        string
	Description string
	KeyHash     string // never exposed
	KeyPrefix   string // display only
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	LastUsedAt  *time.Time
	Active      bool
}

// GeneratedAPIKey is the creation response carrying the plaintext exactly once.
type GeneratedAPIKey struct {
	PlainKey string
	APIKey   *APIKey
}

// IsExpired reports whether the key has passed its expiry.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// IsUsable reports whether the key may authenticate requests.
func (k *APIKey) IsUsable(now time.Time) bool {
	return k.Active && !k.IsExpired(now)
}
