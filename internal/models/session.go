package models

import "time"

// Session is an active login session. At most MaxConcurrentSessions per user
// may be active; the session service evicts the oldest beyond the cap.
type Session struct {
	ID           string
	UserID       string
	SessionToken string // opaque, unguessable
	IPAddress    string
	UserAgent    string
	LoginTime    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	Active       bool
}

// IsExpired reports whether the session has passed its expiry.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
