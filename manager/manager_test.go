package manager

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/sandpool/cache"
	"github.com/isdmx/sandpool/config"
	"github.com/isdmx/sandpool/pool"
	"github.com/isdmx/sandpool/provider"
)

// stubSandbox implements provider.Sandbox for testing
type stubSandbox struct {
	id string
}

func (s *stubSandbox) ID() string { return s.id }

func (s *stubSandbox) Health(context.Context) error { return nil }
func (s *stubSandbox) Exec(context.Context, string) (provider.ExecResult, error) {
	return provider.ExecResult{}, nil
}

func (s *stubSandbox) Terminate(context.Context) error { return nil }

// stubProvider implements provider.Client for testing
type stubProvider struct {
	mu      sync.Mutex
	creates int
}

func (s *stubProvider) Create(context.Context, provider.CreateRequest) (provider.Sandbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	return &stubSandbox{id: fmt.Sprintf("sbx-%d", s.creates)}, nil
}

func (s *stubProvider) Connect(_ context.Context, id string) (provider.Sandbox, error) {
	return &stubSandbox{id: id}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Pool: config.PoolConfig{
			IdleTimeoutSec:          500,
			MaxSandboxAgeSec:        900,
			MaxPerUser:              2,
			MaxTotal:                100,
			RecentActivityWindowSec: 30,
			CleanupIntervalSec:      1,
			MaxIDLength:             64,
		},
		Provider: config.ProviderConfig{
			BaseURL:           "http://provider.test",
			Template:          "base",
			ConnectTimeoutSec: 5,
			HealthTimeoutSec:  3,
			RequestTimeoutSec: 5,
			MaxRetries:        2,
			RetryDelaySec:     0.001,
		},
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := New(zaptest.NewLogger(t), testConfig(), &stubProvider{}, cache.NewNoop())
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m
}

func TestGetAndRelease(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	handle, err := m.GetSandbox(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "sbx-1", handle.ID())
	assert.Equal(t, 1, m.Stats().PoolSize)

	m.ReleaseSandbox(ctx, "u1", "p1")
	assert.Zero(t, m.Stats().PoolSize)
}

func TestReleaseNeverFails(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// Unknown slot and invalid identifiers are both absorbed.
	m.ReleaseSandbox(ctx, "u1", "p1")
	m.ReleaseSandbox(ctx, "", "p1")
	m.ReleaseSandbox(ctx, "u:bad", "p1")
}

func TestErrorTaxonomyReachesCaller(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.GetSandbox(ctx, "", "p1")
	assert.True(t, pool.IsValidation(err))

	_, err = m.GetSandbox(ctx, "u1", "p1")
	require.NoError(t, err)
	_, err = m.GetSandbox(ctx, "u1", "p2")
	require.NoError(t, err)
	_, err = m.GetSandbox(ctx, "u1", "p3")
	assert.True(t, pool.IsQuotaExceeded(err))
}

func TestStartIdempotent(t *testing.T) {
	m := newTestManager(t)
	m.Start()
	m.Start()
	m.Shutdown(context.Background())
	// A second shutdown is also safe.
	m.Shutdown(context.Background())
}

func TestShutdownReleasesSandboxes(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.GetSandbox(ctx, "u1", "p1")
	require.NoError(t, err)
	_, err = m.GetSandbox(ctx, "u2", "p1")
	require.NoError(t, err)

	m.Start()
	done := make(chan struct{})
	go func() {
		m.Shutdown(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	assert.Zero(t, m.Stats().PoolSize)
}
