package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports that the key has no entry. A miss is an expected
// outcome, not a failure.
var ErrNotFound = errors.New("cache entry not found")

// ErrUnavailable reports that the cache could not serve the operation. The
// pool treats it as a miss and continues memory-only; it never reaches
// callers of the façade.
var ErrUnavailable = errors.New("cache unavailable")

// Store is the distributed cache consumed by the pool. Implementations must
// translate every backend failure into ErrUnavailable.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set writes key with a TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases backend connections.
	Close() error
}
