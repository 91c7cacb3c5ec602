package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmercier/aegis/internal/models"
)

// AuditService records security events. Every entry is written to the
// structured log and to the append-only store; a store failure is logged and
// swallowed so auditing never breaks the operation being audited.
type AuditService struct {
	repo   AuditLogRepository
	logger *slog.Logger
	clock  Clock
}

func NewAuditService(repo AuditLogRepository, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger,
		clock:  time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *AuditService) SetClock(clock Clock) {
	s.clock = clock
}

func (s *AuditService) LogSuccess(ctx context.Context, username, action, details, ipAddress, userAgent string) {
	s.record(ctx, &models.AuditLog{
		Username:  username,
		Action:    action,
		Details:   details,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   true,
	})
}

func (s *AuditService) LogFailure(ctx context.Context, username, action, details, ipAddress, userAgent, errorMessage string) {
	s.record(ctx, &models.AuditLog{
		Username:     username,
		Action:       action,
		Details:      details,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		Success:      false,
		ErrorMessage: errorMessage,
	})
}

func (s *AuditService) record(ctx context.Context, entry *models.AuditLog) {
	entry.Timestamp = s.clock()

	s.logger.InfoContext(ctx, "audit event",
		"username", entry.Username,
		"action", entry.Action,
		"success", entry.Success,
		"ip_address", entry.IPAddress,
	)

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit entry",
			"action", entry.Action,
			"username", entry.Username,
			"error", err,
		)
	}
}

func (s *AuditService) List(ctx context.Context, filter models.AuditFilter, limit, offset int) ([]*models.AuditLog, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.repo.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

func (s *AuditService) RecentByUsername(ctx context.Context, username string, limit int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	return s.repo.RecentByUsername(ctx, username, limit)
}
