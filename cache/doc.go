// Package cache provides the distributed cache adapter for sandbox recovery.
//
// The cache package wraps a Redis-compatible service behind the Store
// interface. The pool persists pool-key → sandbox-ID mappings here so a
// restarted process (or another process instance) can reconnect to warm
// sandboxes instead of provisioning fresh ones. The cache is an optimization,
// never a correctness requirement: every operation probes availability first,
// retries once on transient failure, and collapses all backend errors into
// ErrUnavailable so the pool can degrade to memory-only behavior.
//
// Usage:
//
//	store, err := cache.NewRedis(logger, &cfg.Redis)
//	id, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrNotFound) { ... }
package cache
