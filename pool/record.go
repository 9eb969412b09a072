package pool

import (
	"time"

	"github.com/isdmx/sandpool/provider"
)

// Status is the lifecycle state of a pooled sandbox record.
type Status int

const (
	// StatusActive means the sandbox answered its last health probe or was
	// used within the recent-activity window.
	StatusActive Status = iota
	// StatusReconnecting means a reattach against the provider is in flight.
	StatusReconnecting
	// StatusDead means the sandbox failed a health probe and is being
	// removed.
	StatusDead
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusReconnecting:
		return "reconnecting"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Record tracks one live sandbox. Records are owned and mutated exclusively
// by the Pool under its registry lock.
type Record struct {
	SandboxID    string
	Key          Key
	Handle       provider.Sandbox
	CreatedAt    time.Time
	LastActivity time.Time
	RequestCount int
	Status       Status
}

// Idle reports whether the record has seen no activity for longer than
// timeout.
func (r *Record) Idle(timeout time.Duration, now time.Time) bool {
	return now.Sub(r.LastActivity) > timeout
}

// Expired reports whether the record has outlived maxAge.
func (r *Record) Expired(maxAge time.Duration, now time.Time) bool {
	return now.Sub(r.CreatedAt) > maxAge
}

// Touch refreshes the activity timestamp and bumps the request counter.
func (r *Record) Touch(now time.Time) {
	r.LastActivity = now
	r.RequestCount++
}
