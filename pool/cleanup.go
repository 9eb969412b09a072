package pool

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CleanupScheduler periodically evicts idle and expired sandboxes and
// collects unused per-key locks. One failed cycle never stops the loop;
// errors are logged and counted for alerting.
type CleanupScheduler struct {
	logger   *zap.Logger
	pool     *Pool
	stats    *Stats
	locks    *LockRegistry
	interval time.Duration
}

// NewCleanupScheduler creates a scheduler for the given pool
func NewCleanupScheduler(log *zap.Logger, pool *Pool, stats *Stats, locks *LockRegistry,
	interval time.Duration) *CleanupScheduler {
	return &CleanupScheduler{
		logger:   log,
		pool:     pool,
		stats:    stats,
		locks:    locks,
		interval: interval,
	}
}

// Run executes cleanup cycles until ctx is cancelled.
func (s *CleanupScheduler) Run(ctx context.Context) {
	s.logger.Info("cleanup scheduler started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cleanup scheduler stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// RunOnce executes a single cleanup cycle, for tests and manual triggering.
func (s *CleanupScheduler) RunOnce(ctx context.Context) {
	s.runCycle(ctx)
}

func (s *CleanupScheduler) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.stats.IncCleanupErrors()
			s.logger.Error("cleanup cycle panicked", zap.Any("panic", r))
		}
	}()

	idle, expired := s.pool.Sweep(ctx)
	collected := s.locks.GarbageCollect(s.pool.ActiveKeys())

	if idle > 0 || expired > 0 || collected > 0 {
		s.logger.Info("cleanup cycle completed",
			zap.Int("evicted_idle", idle),
			zap.Int("evicted_expired", expired),
			zap.Int("locks_collected", collected),
			zap.Int("pool_size", s.pool.Size()))
	}
}
