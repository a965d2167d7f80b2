package background

import (
	"context"
	"log/slog"
	"time"
)

// retention is how long expired rows linger before the sweeper removes
// them. Expiry itself is evaluated lazily at read time; deletion only
// bounds table growth.
const retention = 24 * time.Hour

// CodeStore and CounterStore are the cleanup-facing slices of the
// repositories.
type CodeStore interface {
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type CounterStore interface {
	DeleteIdleCounters(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupManager periodically removes long-expired verification codes and
// idle throttle counters.
type CleanupManager struct {
	codes    CodeStore
	counters CounterStore
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

func NewCleanupManager(codes CodeStore, counters CounterStore, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		codes:    codes,
		counters: counters,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task, running once immediately.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// Stop signals the cleanup loop to exit.
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-retention)

	codes, err := cm.codes.DeleteCreatedBefore(cleanupCtx, cutoff)
	if err != nil {
		cm.logger.Error("failed to cleanup verification codes", slog.Any("error", err))
	}

	counters, err := cm.counters.DeleteIdleCounters(cleanupCtx, cutoff)
	if err != nil {
		cm.logger.Error("failed to cleanup throttle counters", slog.Any("error", err))
	}

	if codes > 0 || counters > 0 {
		cm.logger.Info("cleanup completed",
			slog.Int64("codes_deleted", codes),
			slog.Int64("counters_deleted", counters))
	}
}
