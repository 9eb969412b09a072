package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/sandpool/cache"
	"github.com/isdmx/sandpool/config"
	"github.com/isdmx/sandpool/provider"
)

// Options carries optional creation parameters forwarded to the provider.
type Options struct {
	Metadata map[string]string
	Envs     map[string]string
}

// Pool is the single source of truth for sandbox liveness. It maps each
// (user, project) key to at most one live sandbox, reuses warm handles,
// recovers sandboxes through the distributed cache after restarts, and
// enforces per-user and global caps before provisioning.
type Pool struct {
	logger *zap.Logger
	cfg    *config.Config
	client provider.Client
	cache  cache.Store
	stats  *Stats
	locks  *LockRegistry

	mu            sync.Mutex
	records       map[Key]*Record
	reservedTotal int
	reservedUser  map[string]int

	clock func() time.Time
}

// Option defines a functional option for Pool
type Option func(*Pool)

// WithClock sets the time source, mainly for tests
func WithClock(clock func() time.Time) Option {
	return func(p *Pool) {
		p.clock = clock
	}
}

// New creates a sandbox pool
func New(log *zap.Logger, cfg *config.Config, client provider.Client, store cache.Store,
	stats *Stats, locks *LockRegistry, opts ...Option) *Pool {
	p := &Pool{
		logger:       log,
		cfg:          cfg,
		client:       client,
		cache:        store,
		stats:        stats,
		locks:        locks,
		records:      make(map[Key]*Record),
		reservedUser: make(map[string]int),
		clock:        time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Get returns a live sandbox handle for the given user and project, creating
// or recovering one as needed.
func (p *Pool) Get(ctx context.Context, userID, projectID string) (provider.Sandbox, error) {
	return p.GetWithOptions(ctx, userID, projectID, Options{})
}

// GetWithOptions is Get with creation metadata and environment variables
// forwarded to the provider on fresh provisioning.
//
// The per-key lock is held for the whole call, so concurrent requests for the
// same key collapse into a single provisioning attempt and later callers see
// the record the first one installed.
func (p *Pool) GetWithOptions(ctx context.Context, userID, projectID string, opts Options) (provider.Sandbox, error) {
	key, err := NewKey(userID, projectID, p.cfg.Pool.MaxIDLength)
	if err != nil {
		return nil, err
	}

	p.stats.IncRequests()

	lock, err := p.locks.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	// Step 1: warm handle from the in-memory registry.
	if handle, ok := p.reuseExisting(ctx, key); ok {
		return handle, nil
	}

	// Step 2: recover through the distributed cache.
	if handle, ok := p.recoverFromCache(ctx, key); ok {
		return handle, nil
	}

	// Step 3: fresh provisioning, quota first.
	if err := p.reserveQuota(key); err != nil {
		p.stats.IncRejected()
		return nil, err
	}
	return p.provision(ctx, key, opts)
}

// reuseExisting serves the handle from the in-memory record when it is fresh
// or still answers a health probe. A record that fails its probe is marked
// dead and removed so the caller falls through to recovery.
func (p *Pool) reuseExisting(ctx context.Context, key Key) (provider.Sandbox, bool) {
	p.mu.Lock()
	rec, ok := p.records[key]
	if !ok {
		p.mu.Unlock()
		return nil, false
	}

	now := p.clock()
	idle := now.Sub(rec.LastActivity)

	// Recently used sandboxes skip the probe; a round trip per request
	// would dominate latency under steady traffic.
	if idle < p.cfg.RecentActivityWindow() {
		rec.Touch(now)
		handle := rec.Handle
		p.mu.Unlock()
		p.logger.Debug("pool hit, fresh",
			zap.String("key", key.String()),
			zap.String("sandbox_id", rec.SandboxID))
		return handle, true
	}

	rec.Status = StatusReconnecting
	handle := rec.Handle
	p.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.Provider.HealthTimeoutSec)*time.Second)
	err := handle.Health(probeCtx)
	cancel()

	if err != nil {
		p.logger.Warn("health probe failed, discarding sandbox",
			zap.String("key", key.String()),
			zap.String("sandbox_id", rec.SandboxID),
			zap.Error(err))
		p.mu.Lock()
		rec.Status = StatusDead
		delete(p.records, key)
		p.updateGaugesLocked()
		p.mu.Unlock()
		p.teardown(ctx, key, rec)
		return nil, false
	}

	p.mu.Lock()
	rec.Status = StatusActive
	rec.Touch(p.clock())
	p.mu.Unlock()
	p.logger.Info("pool hit, verified",
		zap.String("key", key.String()),
		zap.String("sandbox_id", rec.SandboxID))
	return rec.Handle, true
}

// recoverFromCache looks up a previously known sandbox ID and tries to
// reattach. Any failure is absorbed: the entry is dropped and the caller
// falls through to fresh provisioning.
func (p *Pool) recoverFromCache(ctx context.Context, key Key) (provider.Sandbox, bool) {
	sandboxID, err := p.cache.Get(ctx, key.CacheKey())
	switch {
	case errors.Is(err, cache.ErrNotFound):
		p.stats.IncCacheMisses()
		return nil, false
	case err != nil:
		p.stats.IncCacheErrors()
		return nil, false
	}
	p.stats.IncCacheHits()

	handle, err := p.reconnect(ctx, key, sandboxID)
	if err != nil {
		p.stats.IncReconnectFailed()
		p.logger.Warn("reconnect failed, falling back to provisioning",
			zap.String("key", key.String()),
			zap.String("sandbox_id", sandboxID),
			zap.Error(err))
		// The cached ID is stale; drop it so the next restart does not
		// chase it again.
		if err := p.cache.Delete(ctx, key.CacheKey()); err != nil {
			p.stats.IncCacheErrors()
		}
		return nil, false
	}
	return handle, true
}

// reconnect reattaches to sandboxID and verifies it is alive before trusting
// it: a cache entry is not proof of a healthy sandbox.
func (p *Pool) reconnect(ctx context.Context, key Key, sandboxID string) (provider.Sandbox, error) {
	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.Provider.ConnectTimeoutSec)*time.Second)
	handle, err := p.client.Connect(connectCtx, sandboxID)
	cancel()
	if err != nil {
		return nil, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.Provider.HealthTimeoutSec)*time.Second)
	err = handle.Health(probeCtx)
	cancel()
	if err != nil {
		return nil, err
	}

	now := p.clock()
	rec := &Record{
		SandboxID:    sandboxID,
		Key:          key,
		Handle:       handle,
		CreatedAt:    now,
		LastActivity: now,
		Status:       StatusActive,
	}

	p.mu.Lock()
	p.records[key] = rec
	p.updateGaugesLocked()
	p.mu.Unlock()

	p.stats.IncReconnected()
	p.logger.Info("sandbox reconnected",
		zap.String("key", key.String()),
		zap.String("sandbox_id", sandboxID))
	return handle, nil
}

// reserveQuota enforces the global and per-user caps strictly before any
// provider call and reserves a slot for the in-flight provisioning, so
// concurrent first requests at the cap cannot overshoot it while the provider
// call is in progress. Every reservation is returned through
// releaseQuotaLocked, either when the record is installed or when
// provisioning fails.
func (p *Pool) reserveQuota(key Key) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.records)+p.reservedTotal >= p.cfg.Pool.MaxTotal {
		return &QuotaError{Scope: QuotaGlobal, Limit: p.cfg.Pool.MaxTotal}
	}

	userCount := p.reservedUser[key.UserID]
	for k := range p.records {
		if k.UserID == key.UserID {
			userCount++
		}
	}
	if userCount >= p.cfg.Pool.MaxPerUser {
		return &QuotaError{Scope: QuotaUser, Limit: p.cfg.Pool.MaxPerUser}
	}

	p.reservedTotal++
	p.reservedUser[key.UserID]++
	return nil
}

// releaseQuotaLocked returns a reservation taken by reserveQuota. Callers
// hold p.mu.
func (p *Pool) releaseQuotaLocked(userID string) {
	p.reservedTotal--
	p.reservedUser[userID]--
	if p.reservedUser[userID] <= 0 {
		delete(p.reservedUser, userID)
	}
}

// provision creates a fresh sandbox with bounded retries and exponential
// backoff, installs the record, then writes the cache entry. The in-memory
// registry is written first; it is the authority for reads in this process,
// the cache entry only serves recovery.
func (p *Pool) provision(ctx context.Context, key Key, opts Options) (provider.Sandbox, error) {
	metadata := map[string]string{
		"user_id":    key.UserID,
		"project_id": key.ProjectID,
		"created_at": p.clock().UTC().Format(time.RFC3339),
	}
	for k, v := range opts.Metadata {
		metadata[k] = v
	}

	req := provider.CreateRequest{
		Template:            p.cfg.Provider.Template,
		TimeoutSec:          p.cfg.Pool.IdleTimeoutSec,
		AllowInternetAccess: p.cfg.Provider.AllowInternetAccess,
		Metadata:            metadata,
		Envs:                opts.Envs,
	}

	handle, err := p.createWithRetry(ctx, key, req)
	if err != nil {
		p.mu.Lock()
		p.releaseQuotaLocked(key.UserID)
		p.mu.Unlock()
		p.stats.IncCreationFailed()
		return nil, &ProviderError{Op: "create", Err: err}
	}

	now := p.clock()
	rec := &Record{
		SandboxID:    handle.ID(),
		Key:          key,
		Handle:       handle,
		CreatedAt:    now,
		LastActivity: now,
		Status:       StatusActive,
	}

	p.mu.Lock()
	p.releaseQuotaLocked(key.UserID)
	p.records[key] = rec
	size := len(p.records)
	p.updateGaugesLocked()
	p.mu.Unlock()

	p.stats.IncCreated()

	if err := p.cache.Set(ctx, key.CacheKey(), handle.ID(), p.cfg.CacheTTL()); err != nil {
		p.stats.IncCacheErrors()
	}

	p.logger.Info("sandbox created",
		zap.String("key", key.String()),
		zap.String("sandbox_id", handle.ID()),
		zap.Duration("cache_ttl", p.cfg.CacheTTL()),
		zap.Int("pool_size", size))
	return handle, nil
}

func (p *Pool) createWithRetry(ctx context.Context, key Key, req provider.CreateRequest) (provider.Sandbox, error) {
	var lastErr error
	delay := p.cfg.RetryDelay()

	for attempt := 1; attempt <= p.cfg.Provider.MaxRetries; attempt++ {
		handle, err := p.client.Create(ctx, req)
		if err == nil {
			return handle, nil
		}
		lastErr = err

		if !provider.IsTransient(err) || attempt == p.cfg.Provider.MaxRetries {
			break
		}

		p.logger.Warn("sandbox creation failed, retrying",
			zap.String("key", key.String()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
	return nil, lastErr
}

// Release terminates and forgets the sandbox for the given user and project.
// Releasing a slot with no sandbox is a no-op.
func (p *Pool) Release(ctx context.Context, userID, projectID string) error {
	key, err := NewKey(userID, projectID, p.cfg.Pool.MaxIDLength)
	if err != nil {
		return err
	}

	lock, err := p.locks.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer lock.Release()

	p.mu.Lock()
	rec, ok := p.records[key]
	if ok {
		delete(p.records, key)
		p.updateGaugesLocked()
	}
	p.mu.Unlock()

	if ok {
		p.teardown(ctx, key, rec)
		return nil
	}

	// Still drop any stale cache entry left behind by a previous process
	// instance.
	if err := p.cache.Delete(ctx, key.CacheKey()); err != nil {
		p.stats.IncCacheErrors()
	}
	return nil
}

// teardown terminates the sandbox best-effort and drops its cache entry. It
// runs after the record left the registry and never under p.mu, so one
// tenant's slow termination cannot stall another tenant's requests. Callers
// hold the per-key lock.
func (p *Pool) teardown(ctx context.Context, key Key, rec *Record) {
	termCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx),
		time.Duration(p.cfg.Provider.RequestTimeoutSec)*time.Second)
	if err := rec.Handle.Terminate(termCtx); err != nil {
		p.logger.Warn("sandbox termination failed",
			zap.String("key", key.String()),
			zap.String("sandbox_id", rec.SandboxID),
			zap.Error(err))
	}
	cancel()

	if err := p.cache.Delete(ctx, key.CacheKey()); err != nil {
		p.stats.IncCacheErrors()
	}

	p.logger.Info("sandbox removed",
		zap.String("key", key.String()),
		zap.String("sandbox_id", rec.SandboxID),
		zap.Int("requests_served", rec.RequestCount))
}

func (p *Pool) updateGaugesLocked() {
	perUser := make(map[string]int, len(p.records))
	for k := range p.records {
		perUser[k.UserID]++
	}
	p.stats.SetGauges(len(p.records), perUser)
}

// Sweep evicts idle and expired records and reports how many of each were
// removed. Records whose per-key lock is held are skipped; an in-flight Get
// is about to refresh them anyway.
func (p *Pool) Sweep(ctx context.Context) (evictedIdle, evictedExpired int) {
	now := p.clock()

	p.mu.Lock()
	var candidates []Key
	for key, rec := range p.records {
		if rec.Expired(p.cfg.MaxSandboxAge(), now) || rec.Idle(p.cfg.IdleTimeout(), now) {
			candidates = append(candidates, key)
		}
	}
	p.mu.Unlock()

	for _, key := range candidates {
		lock, held := p.locks.TryAcquire(key)
		if !held {
			continue
		}

		// Re-check and classify under the lock: the record may have been
		// refreshed or replaced since the scan.
		p.mu.Lock()
		rec, ok := p.records[key]
		expired := ok && rec.Expired(p.cfg.MaxSandboxAge(), now)
		evict := ok && (expired || rec.Idle(p.cfg.IdleTimeout(), now))
		if evict {
			delete(p.records, key)
			p.updateGaugesLocked()
		}
		p.mu.Unlock()

		if evict {
			p.teardown(ctx, key, rec)
			if expired {
				p.stats.IncEvictedExpired()
				evictedExpired++
			} else {
				p.stats.IncEvictedIdle()
				evictedIdle++
			}
		}
		lock.Release()
	}
	return evictedIdle, evictedExpired
}

// ActiveKeys returns the set of keys with live records, for lock collection.
func (p *Pool) ActiveKeys() map[Key]struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := make(map[Key]struct{}, len(p.records))
	for key := range p.records {
		active[key] = struct{}{}
	}
	return active
}

// Size returns the number of live records.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// Shutdown releases every sandbox in the pool and logs final statistics.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	keys := make([]Key, 0, len(p.records))
	for key := range p.records {
		keys = append(keys, key)
	}
	p.mu.Unlock()

	for _, key := range keys {
		if err := p.Release(ctx, key.UserID, key.ProjectID); err != nil {
			p.logger.Warn("release during shutdown failed",
				zap.String("key", key.String()),
				zap.Error(err))
		}
	}

	snap := p.stats.Snapshot()
	p.logger.Info("pool shut down",
		zap.Uint64("created", snap.Created),
		zap.Uint64("reconnected", snap.Reconnected),
		zap.Uint64("cache_hits", snap.CacheHits),
		zap.Float64("cache_hit_rate", snap.CacheHitRate))
}
