// Package pool implements the multi-tenant sandbox pool.
//
// The pool package is the single source of truth for sandbox liveness. Each
// (user, project) pair owns at most one sandbox record; a per-key lock
// serializes get-or-create so concurrent requests for the same slot collapse
// into a single provisioning attempt. Warm handles are served without a
// provider round trip inside the recent-activity window, idle handles are
// re-verified with a bounded health probe, and sandboxes lost to a restart
// are recovered through the distributed cache before falling back to fresh
// provisioning. Per-user and global quotas are enforced strictly before any
// provider call.
//
// The CleanupScheduler reclaims idle and expired sandboxes on a fixed
// interval and garbage-collects per-key locks whose slot no longer has a
// live record.
//
// Usage:
//
//	stats := pool.NewStats()
//	locks := pool.NewLockRegistry()
//	p := pool.New(logger, cfg, providerClient, cacheStore, stats, locks)
//	handle, err := p.Get(ctx, "u1", "p1")
package pool
