package manager

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/isdmx/sandpool/cache"
	"github.com/isdmx/sandpool/config"
	"github.com/isdmx/sandpool/logger"
	"github.com/isdmx/sandpool/pool"
	"github.com/isdmx/sandpool/provider"
)

// Manager is the process-wide sandbox lifecycle façade handed to the agent's
// tool layer. It owns the pool, its stats and lock registries, and the
// cleanup scheduler's lifetime.
type Manager struct {
	logger    *zap.Logger
	pool      *pool.Pool
	stats     *pool.Stats
	scheduler *pool.CleanupScheduler

	cancelCleanup context.CancelFunc
	cleanupDone   chan struct{}
	startOnce     sync.Once
	stopOnce      sync.Once
}

// New creates a manager from explicit dependencies. This is the constructor
// the application's startup sequence wires; Default exists for callers
// without access to the composition root.
func New(log *zap.Logger, cfg *config.Config, client provider.Client, store cache.Store) *Manager {
	stats := pool.NewStats()
	locks := pool.NewLockRegistry()
	p := pool.New(log, cfg, client, store, stats, locks)

	return &Manager{
		logger:      log,
		pool:        p,
		stats:       stats,
		scheduler:   pool.NewCleanupScheduler(log, p, stats, locks, cfg.CleanupInterval()),
		cleanupDone: make(chan struct{}),
	}
}

// Start launches the background cleanup scheduler. Calling it more than once
// is a no-op.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancelCleanup = cancel
		go func() {
			defer close(m.cleanupDone)
			m.scheduler.Run(ctx)
		}()
	})
}

// GetSandbox returns a live sandbox handle for the given user and project.
// It fails with a pool.ValidationError, pool.QuotaError, or
// pool.ProviderError; cache failures never surface here.
func (m *Manager) GetSandbox(ctx context.Context, userID, projectID string) (provider.Sandbox, error) {
	return m.pool.Get(ctx, userID, projectID)
}

// ReleaseSandbox terminates and forgets the sandbox for the given user and
// project. It is idempotent and never fails: problems are logged and
// absorbed.
func (m *Manager) ReleaseSandbox(ctx context.Context, userID, projectID string) {
	if err := m.pool.Release(ctx, userID, projectID); err != nil {
		m.logger.Warn("release failed",
			zap.String("user_id", userID),
			zap.String("project_id", projectID),
			zap.Error(err))
	}
}

// Stats returns an immutable snapshot of pool counters and gauges.
func (m *Manager) Stats() pool.Snapshot {
	return m.stats.Snapshot()
}

// Shutdown stops the cleanup scheduler and releases every live sandbox.
// Safe to call more than once.
func (m *Manager) Shutdown(ctx context.Context) {
	m.stopOnce.Do(func() {
		if m.cancelCleanup != nil {
			m.cancelCleanup()
			select {
			case <-m.cleanupDone:
			case <-ctx.Done():
			}
		}
		m.pool.Shutdown(ctx)
	})
}

var (
	defaultMu      sync.Mutex
	defaultManager *Manager
)

// Default returns the lazily constructed process-wide manager, building it on
// first use from config.New and the configured provider and cache backends.
// Construction runs under a mutex so concurrent first callers cannot race it;
// a failed construction is not memoized and the next caller retries.
func Default() (*Manager, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultManager != nil {
		return defaultManager, nil
	}

	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	log, err := logger.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	client, err := provider.NewHTTPClient(log, &cfg.Provider)
	if err != nil {
		return nil, err
	}
	store, err := cache.NewStore(log, cfg)
	if err != nil {
		return nil, err
	}

	m := New(log, cfg, client, store)
	m.Start()
	defaultManager = m
	return m, nil
}

// ResetDefault tears down the process-wide manager, primarily for tests.
func ResetDefault(ctx context.Context) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultManager != nil {
		defaultManager.Shutdown(ctx)
		defaultManager = nil
	}
}
