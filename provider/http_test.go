package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/sandpool/config"
)

func newTestClient(t *testing.T, handler http.Handler) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.ProviderConfig{
		BaseURL:           srv.URL,
		APIKey:            "test-key",
		Template:          "base",
		ConnectTimeoutSec: 5,
		HealthTimeoutSec:  3,
		RequestTimeoutSec: 10,
		MaxRetries:        2,
		RetryDelaySec:     0.01,
	}
	client, err := NewHTTPClient(zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	return client
}

func TestCreate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var gotKey string
		var gotPayload createPayload
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/sandboxes", r.URL.Path)
			gotKey = r.Header.Get("X-API-Key")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
			json.NewEncoder(w).Encode(sandboxPayload{SandboxID: "sbx-123"})
		}))

		sb, err := client.Create(context.Background(), CreateRequest{
			Template:            "base",
			TimeoutSec:          500,
			AllowInternetAccess: true,
			Metadata:            map[string]string{"user_id": "u1"},
		})
		require.NoError(t, err)
		assert.Equal(t, "sbx-123", sb.ID())
		assert.Equal(t, "test-key", gotKey)
		assert.Equal(t, "base", gotPayload.Template)
		assert.Equal(t, "u1", gotPayload.Metadata["user_id"])
	})

	t.Run("EmptySandboxID", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(sandboxPayload{})
		}))

		_, err := client.Create(context.Background(), CreateRequest{Template: "base"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty sandbox_id")
	})

	t.Run("ServerErrorIsTransient", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))

		_, err := client.Create(context.Background(), CreateRequest{Template: "base"})
		require.Error(t, err)
		assert.True(t, IsTransient(err))
	})

	t.Run("RateLimitIsTransient", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))

		_, err := client.Create(context.Background(), CreateRequest{Template: "base"})
		require.Error(t, err)
		assert.True(t, IsTransient(err))
	})

	t.Run("BadRequestIsTerminal", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unknown template", http.StatusBadRequest)
		}))

		_, err := client.Create(context.Background(), CreateRequest{Template: "nope"})
		require.Error(t, err)
		assert.False(t, IsTransient(err))
		assert.Contains(t, err.Error(), "unknown template")
	})
}

func TestConnect(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/sandboxes/sbx-42/connect", r.URL.Path)
			json.NewEncoder(w).Encode(sandboxPayload{SandboxID: "sbx-42"})
		}))

		sb, err := client.Connect(context.Background(), "sbx-42")
		require.NoError(t, err)
		assert.Equal(t, "sbx-42", sb.ID())
	})

	t.Run("GoneSandbox", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		_, err := client.Connect(context.Background(), "sbx-gone")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSandboxOperations(t *testing.T) {
	t.Run("HealthAndExec", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/sandboxes/sbx-1/health":
				w.WriteHeader(http.StatusOK)
			case "/sandboxes/sbx-1/exec":
				var p execPayload
				require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
				assert.Equal(t, "echo hi", p.Command)
				json.NewEncoder(w).Encode(execResultPayload{Stdout: "hi\n", ExitCode: 0})
			default:
				t.Fatalf("unexpected path: %s", r.URL.Path)
			}
		}))

		sb := &httpSandbox{client: client, id: "sbx-1"}
		require.NoError(t, sb.Health(context.Background()))

		result, err := sb.Exec(context.Background(), "echo hi")
		require.NoError(t, err)
		assert.Equal(t, "hi\n", result.Stdout)
		assert.Equal(t, 0, result.ExitCode)
	})

	t.Run("HealthFailure", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))

		sb := &httpSandbox{client: client, id: "sbx-1"}
		err := sb.Health(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "health probe failed")
	})

	t.Run("TerminateToleratesGone", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		sb := &httpSandbox{client: client, id: "sbx-1"}
		assert.NoError(t, sb.Terminate(context.Background()))
	})
}
