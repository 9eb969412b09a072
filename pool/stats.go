package pool

import "sync"

// Snapshot is an immutable copy of the pool's counters and gauges.
type Snapshot struct {
	Requests         uint64         `json:"requests"`
	Created          uint64         `json:"created"`
	Reconnected      uint64         `json:"reconnected"`
	ReconnectFailed  uint64         `json:"reconnect_failed"`
	CreationFailed   uint64         `json:"creation_failed"`
	Rejected         uint64         `json:"rejected"`
	EvictedIdle      uint64         `json:"evicted_idle"`
	EvictedExpired   uint64         `json:"evicted_expired"`
	CacheHits        uint64         `json:"cache_hits"`
	CacheMisses      uint64         `json:"cache_misses"`
	CacheErrors      uint64         `json:"cache_errors"`
	CleanupErrors    uint64         `json:"cleanup_errors"`
	PoolSize         int            `json:"pool_size"`
	SandboxesPerUser map[string]int `json:"sandboxes_per_user"`
	CacheHitRate     float64        `json:"cache_hit_rate"`
}

// Stats holds the pool's counters and gauges. One mutex guards every
// mutation so concurrent updates are never lost; reads go through Snapshot.
type Stats struct {
	mu sync.Mutex

	requests        uint64
	created         uint64
	reconnected     uint64
	reconnectFailed uint64
	creationFailed  uint64
	rejected        uint64
	evictedIdle     uint64
	evictedExpired  uint64
	cacheHits       uint64
	cacheMisses     uint64
	cacheErrors     uint64
	cleanupErrors   uint64

	poolSize int
	perUser  map[string]int
}

// NewStats creates an empty stats registry
func NewStats() *Stats {
	return &Stats{perUser: make(map[string]int)}
}

func (s *Stats) IncRequests() { s.inc(&s.requests) }

func (s *Stats) IncCreated() { s.inc(&s.created) }

func (s *Stats) IncReconnected() { s.inc(&s.reconnected) }

func (s *Stats) IncReconnectFailed() { s.inc(&s.reconnectFailed) }

func (s *Stats) IncCreationFailed() { s.inc(&s.creationFailed) }

func (s *Stats) IncRejected() { s.inc(&s.rejected) }

func (s *Stats) IncEvictedIdle() { s.inc(&s.evictedIdle) }

func (s *Stats) IncEvictedExpired() { s.inc(&s.evictedExpired) }

func (s *Stats) IncCacheHits() { s.inc(&s.cacheHits) }

func (s *Stats) IncCacheMisses() { s.inc(&s.cacheMisses) }

func (s *Stats) IncCacheErrors() { s.inc(&s.cacheErrors) }

func (s *Stats) IncCleanupErrors() { s.inc(&s.cleanupErrors) }

func (s *Stats) inc(counter *uint64) {
	s.mu.Lock()
	*counter++
	s.mu.Unlock()
}

// SetGauges replaces the pool-size and per-user gauges. The pool calls this
// after every registry mutation with a map it does not retain.
func (s *Stats) SetGauges(poolSize int, perUser map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poolSize = poolSize
	s.perUser = perUser
}

// Snapshot returns a copy of all counters and gauges. The per-user map is
// deep-copied so callers can never observe a partial update.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	perUser := make(map[string]int, len(s.perUser))
	for user, count := range s.perUser {
		perUser[user] = count
	}

	snap := Snapshot{
		Requests:         s.requests,
		Created:          s.created,
		Reconnected:      s.reconnected,
		ReconnectFailed:  s.reconnectFailed,
		CreationFailed:   s.creationFailed,
		Rejected:         s.rejected,
		EvictedIdle:      s.evictedIdle,
		EvictedExpired:   s.evictedExpired,
		CacheHits:        s.cacheHits,
		CacheMisses:      s.cacheMisses,
		CacheErrors:      s.cacheErrors,
		CleanupErrors:    s.cleanupErrors,
		PoolSize:         s.poolSize,
		SandboxesPerUser: perUser,
	}
	if lookups := s.cacheHits + s.cacheMisses; lookups > 0 {
		snap.CacheHitRate = float64(s.cacheHits) / float64(lookups)
	}
	return snap
}
