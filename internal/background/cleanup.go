package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmercier/aegis/internal/services"
)

// CleanupManager periodically sweeps expired sessions, API keys and refresh
// tokens so the hot tables stay small and lookups stay honest.
type CleanupManager struct {
	sessions      *services.SessionService
	apiKeys       *services.APIKeyService
	refreshTokens services.RefreshTokenRepository
	logger        *slog.Logger
	interval      time.Duration
	clock         services.Clock
	stopCh        chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	sessions *services.SessionService,
	apiKeys *services.APIKeyService,
	refreshTokens services.RefreshTokenRepository,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		sessions:      sessions,
		apiKeys:       apiKeys,
		refreshTokens: refreshTokens,
		logger:        logger,
		interval:      interval,
		clock:         time.Now,
		stopCh:        make(chan struct{}),
	}
}

// SetClock overrides the time source, for tests.
func (cm *CleanupManager) SetClock(clock services.Clock) {
	cm.clock = clock
}

// Start begins the periodic sweep. It blocks until Stop is called or the
// context is cancelled.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runSweep(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	sessions, err := cm.sessions.SweepExpired(sweepCtx)
	if err != nil {
		cm.logger.Error("failed to sweep expired sessions", slog.Any("error", err))
	}

	keys, err := cm.apiKeys.SweepExpired(sweepCtx)
	if err != nil {
		cm.logger.Error("failed to sweep expired api keys", slog.Any("error", err))
	}

	tokens, err := cm.refreshTokens.DeleteExpired(sweepCtx, cm.clock())
	if err != nil {
		cm.logger.Error("failed to delete expired refresh tokens", slog.Any("error", err))
	}

	if sessions > 0 || keys > 0 || tokens > 0 {
		cm.logger.Info("cleanup sweep completed",
			slog.Int64("sessions_deactivated", sessions),
			slog.Int64("api_keys_deactivated", keys),
			slog.Int64("refresh_tokens_deleted", tokens),
		)
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
