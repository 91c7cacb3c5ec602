package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jmercier/aegis/internal/config"
	"github.com/jmercier/aegis/internal/models"
)

// SessionService tracks login sessions and enforces the per-user concurrency
// cap.
type SessionService struct {
	sessions SessionRepository
	audit    *AuditService
	cfg      config.SecurityConfig
	logger   *slog.Logger
	clock    Clock
}

func NewSessionService(sessions SessionRepository, audit *AuditService, cfg config.SecurityConfig, logger *slog.Logger) *SessionService {
	return &SessionService{
		sessions: sessions,
		audit:    audit,
		cfg:      cfg,
		logger:   logger,
		clock:    time.Now,
	}
}

func (s *SessionService) SetClock(clock Clock) {
	s.clock = clock
}

// Establish creates a session for a freshly authenticated user. When the user
// already holds the maximum number of active sessions the oldest ones are
// evicted in the same transaction.
func (s *SessionService) Establish(ctx context.Context, user *models.User, ipAddress, userAgent string) (*models.Session, error) {
	now := s.clock()
	session := &models.Session{
		UserID:       user.ID,
		SessionToken: uuid.New().String(),
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		LoginTime:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.cfg.SessionDuration),
		Active:       true,
	}

	if err := s.sessions.CreateWithCap(ctx, session, s.cfg.MaxConcurrentSessions); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.audit.LogSuccess(ctx, user.Username, models.ActionSessionCreated,
		fmt.Sprintf("session %s created", session.ID), ipAddress, userAgent)

	return session, nil
}

func (s *SessionService) ListForUser(ctx context.Context, userID string) ([]*models.Session, error) {
	return s.sessions.ListActiveByUser(ctx, userID)
}

// Invalidate deactivates a single session. Non-admin callers may only touch
// their own sessions.
func (s *SessionService) Invalidate(ctx context.Context, actor *models.User, sessionID, ipAddress, userAgent string) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}

	if session.UserID != actor.ID && !actor.HasRole(models.RoleAdmin) {
		return models.ErrForbidden
	}

	if err := s.sessions.Deactivate(ctx, sessionID); err != nil {
		return err
	}

	s.audit.LogSuccess(ctx, actor.Username, models.ActionSessionInvalidated,
		fmt.Sprintf("session %s invalidated", sessionID), ipAddress, userAgent)
	return nil
}

// InvalidateAllForUser deactivates every active session the user holds and
// returns how many were affected.
func (s *SessionService) InvalidateAllForUser(ctx context.Context, actor *models.User, targetUserID, targetUsername, ipAddress, userAgent string) (int64, error) {
	if targetUserID != actor.ID && !actor.HasRole(models.RoleAdmin) {
		return 0, models.ErrForbidden
	}

	count, err := s.sessions.DeactivateAllForUser(ctx, targetUserID)
	if err != nil {
		return 0, err
	}

	s.audit.LogSuccess(ctx, actor.Username, models.ActionAllSessionsInvalidated,
		fmt.Sprintf("%d sessions invalidated for %s", count, targetUsername), ipAddress, userAgent)
	return count, nil
}

// Touch stamps activity on the session if it is still live. It is
// best-effort: unknown, inactive and expired sessions are a silent no-op,
// though expired sessions are deactivated on sight.
func (s *SessionService) Touch(ctx context.Context, sessionToken string) error {
	session, err := s.sessions.GetByToken(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}

	now := s.clock()
	if !session.Active {
		return nil
	}
	if session.IsExpired(now) {
		if err := s.sessions.Deactivate(ctx, session.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to deactivate expired session",
				"session_id", session.ID, "error", err)
		}
		return nil
	}

	if err := s.sessions.Touch(ctx, sessionToken, now); err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	return nil
}

// SweepExpired deactivates all sessions past their expiry.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	return s.sessions.DeactivateExpired(ctx, s.clock())
}
