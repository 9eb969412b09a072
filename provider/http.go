package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/sandpool/config"
	"github.com/isdmx/sandpool/logger"
)

// HTTPClient implements Client against the provider's REST API.
type HTTPClient struct {
	logger    *zap.Logger
	cfg       *config.ProviderConfig
	http      *http.Client
	templates *Templates
}

// HTTPClientOption defines a functional option for HTTPClient
type HTTPClientOption func(*HTTPClient)

// WithHTTPDoer sets the underlying http.Client, mainly for tests
func WithHTTPDoer(c *http.Client) HTTPClientOption {
	return func(h *HTTPClient) {
		h.http = c
	}
}

// NewHTTPClient creates a provider client for the configured endpoint
func NewHTTPClient(log *zap.Logger, cfg *config.ProviderConfig, opts ...HTTPClientOption) (*HTTPClient, error) {
	templates, err := LoadTemplates(cfg.TemplatesFile)
	if err != nil {
		return nil, fmt.Errorf("loading sandbox templates: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		// Explicit operator opt-in only; see provider.insecure_skip_verify.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		log.Warn("TLS certificate verification disabled for provider endpoint")
	}

	h := &HTTPClient{
		logger: log,
		cfg:    cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.RequestTimeoutSec) * time.Second,
		},
		templates: templates,
	}

	for _, opt := range opts {
		opt(h)
	}

	log.Info("provider client initialized",
		zap.String("base_url", cfg.BaseURL),
		zap.String("template", cfg.Template),
		zap.String("api_key", logger.MaskSecret(cfg.APIKey)),
		zap.Bool("insecure_skip_verify", cfg.InsecureSkipVerify))

	return h, nil
}

type createPayload struct {
	Template            string            `json:"template"`
	Image               string            `json:"image,omitempty"`
	TimeoutSec          int               `json:"timeout_sec,omitempty"`
	CPUCount            int               `json:"cpu_count,omitempty"`
	MemoryMB            int               `json:"memory_mb,omitempty"`
	AllowInternetAccess bool              `json:"allow_internet_access"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	Envs                map[string]string `json:"envs,omitempty"`
}

type sandboxPayload struct {
	SandboxID string `json:"sandbox_id"`
}

// Create provisions a fresh sandbox via POST /sandboxes
func (h *HTTPClient) Create(ctx context.Context, req CreateRequest) (Sandbox, error) {
	payload := createPayload{
		Template:            req.Template,
		TimeoutSec:          req.TimeoutSec,
		AllowInternetAccess: req.AllowInternetAccess,
		Metadata:            req.Metadata,
		Envs:                req.Envs,
	}
	if tpl, ok := h.templates.Lookup(req.Template); ok {
		payload.Image = tpl.Image
		payload.CPUCount = tpl.CPUCount
		payload.MemoryMB = tpl.MemoryMB
	}

	var resp sandboxPayload
	if err := h.do(ctx, http.MethodPost, "/sandboxes", payload, &resp); err != nil {
		return nil, err
	}
	if resp.SandboxID == "" {
		return nil, fmt.Errorf("provider returned empty sandbox_id")
	}

	h.logger.Info("sandbox created", zap.String("sandbox_id", resp.SandboxID))
	return &httpSandbox{client: h, id: resp.SandboxID}, nil
}

// Connect reattaches to an existing sandbox via POST /sandboxes/{id}/connect,
// which also resumes a paused sandbox
func (h *HTTPClient) Connect(ctx context.Context, sandboxID string) (Sandbox, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(h.cfg.ConnectTimeoutSec)*time.Second)
	defer cancel()

	var resp sandboxPayload
	if err := h.do(ctx, http.MethodPost, "/sandboxes/"+sandboxID+"/connect", nil, &resp); err != nil {
		return nil, err
	}

	h.logger.Info("sandbox reconnected", zap.String("sandbox_id", sandboxID))
	return &httpSandbox{client: h, id: sandboxID}, nil
}

// do issues one provider request and decodes the JSON response into out.
func (h *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding provider request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building provider request: %w", err)
	}
	req.Header.Set("X-API-Key", h.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.http.Do(req)
	if err != nil {
		// Network-level failures are worth one more attempt.
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return &TransientError{Err: fmt.Errorf("provider returned status %d", resp.StatusCode)}
	case resp.StatusCode >= http.StatusBadRequest:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding provider response: %w", err)
		}
	}
	return nil
}

// httpSandbox is a connected session handle backed by the REST API.
type httpSandbox struct {
	client *HTTPClient
	id     string
}

func (s *httpSandbox) ID() string { return s.id }

// Health probes GET /sandboxes/{id}/health with the configured probe timeout
func (s *httpSandbox) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.client.cfg.HealthTimeoutSec)*time.Second)
	defer cancel()

	if err := s.client.do(ctx, http.MethodGet, "/sandboxes/"+s.id+"/health", nil, nil); err != nil {
		return fmt.Errorf("health probe failed for %s: %w", s.id, err)
	}
	return nil
}

type execPayload struct {
	Command string `json:"command"`
}

type execResultPayload struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Exec runs a shell command via POST /sandboxes/{id}/exec
func (s *httpSandbox) Exec(ctx context.Context, command string) (ExecResult, error) {
	var resp execResultPayload
	if err := s.client.do(ctx, http.MethodPost, "/sandboxes/"+s.id+"/exec", execPayload{Command: command}, &resp); err != nil {
		return ExecResult{}, err
	}
	return ExecResult{Stdout: resp.Stdout, Stderr: resp.Stderr, ExitCode: resp.ExitCode}, nil
}

// Terminate destroys the sandbox via DELETE /sandboxes/{id}. A sandbox the
// provider already dropped counts as terminated.
func (s *httpSandbox) Terminate(ctx context.Context) error {
	err := s.client.do(ctx, http.MethodDelete, "/sandboxes/"+s.id, nil, nil)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}
