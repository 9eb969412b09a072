package pool

import (
	"context"
	"sync"
)

// keyLock is a mutex that supports acquisition with a context, so a caller
// whose request is cancelled while waiting never ends up owning the lock. A
// buffered channel of size one holds the token.
type keyLock struct {
	ch chan struct{}
}

func newKeyLock() *keyLock {
	return &keyLock{ch: make(chan struct{}, 1)}
}

// Acquire blocks until the lock is held or ctx is done.
func (l *keyLock) Acquire(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes the lock without blocking, reporting success.
func (l *keyLock) TryAcquire() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns the lock.
func (l *keyLock) Release() {
	<-l.ch
}

// LockRegistry hands out one lock per pool key so operations on the same
// tenant slot serialize while unrelated tenants proceed in parallel. Locks
// accumulate for every key ever seen, so the cleanup scheduler periodically
// collects entries whose key no longer has a live sandbox.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[Key]*keyLock
}

// NewLockRegistry creates an empty lock registry
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[Key]*keyLock)}
}

// Get returns the lock for key, creating it if absent.
func (r *LockRegistry) Get(key Key) *keyLock {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[key]
	if !ok {
		lock = newKeyLock()
		r.locks[key] = lock
	}
	return lock
}

// Acquire takes the lock for key, waiting until it is held or ctx is done.
// Acquisition is re-validated against the registry: when a cleanup cycle
// collected the instance between lookup and acquisition, the stale lock is
// released and the current one taken instead.
func (r *LockRegistry) Acquire(ctx context.Context, key Key) (*keyLock, error) {
	for {
		lock := r.Get(key)
		if err := lock.Acquire(ctx); err != nil {
			return nil, err
		}
		if r.current(key) == lock {
			return lock, nil
		}
		lock.Release()
	}
}

// TryAcquire is Acquire without blocking.
func (r *LockRegistry) TryAcquire(key Key) (*keyLock, bool) {
	for {
		lock := r.Get(key)
		if !lock.TryAcquire() {
			return nil, false
		}
		if r.current(key) == lock {
			return lock, true
		}
		lock.Release()
	}
}

func (r *LockRegistry) current(key Key) *keyLock {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locks[key]
}

// GarbageCollect removes locks for keys outside the active set. A lock that
// is currently held is left alone; it will be collected on a later cycle.
// Returns the number of locks removed.
func (r *LockRegistry) GarbageCollect(active map[Key]struct{}) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, lock := range r.locks {
		if _, ok := active[key]; ok {
			continue
		}
		if !lock.TryAcquire() {
			continue
		}
		// The token goes back once the map entry is gone. A caller that
		// looked the instance up before collection acquires it, fails the
		// registry re-validation, and moves to the current one.
		delete(r.locks, key)
		lock.Release()
		removed++
	}
	return removed
}

// Len returns the number of registered locks.
func (r *LockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
