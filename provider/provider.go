package provider

import (
	"context"
	"errors"
)

// ErrNotFound reports that the provider no longer knows the sandbox ID,
// typically because it was terminated or expired on the provider side.
var ErrNotFound = errors.New("sandbox not found")

// CreateRequest represents the parameters for sandbox creation
type CreateRequest struct {
	Template            string
	TimeoutSec          int
	AllowInternetAccess bool
	Metadata            map[string]string
	Envs                map[string]string
}

// ExecResult represents the result of a command executed inside a sandbox
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Sandbox is a connected session against a live sandbox. Implementations are
// opaque to the pool; the pool only probes health, runs commands, and
// terminates.
type Sandbox interface {
	// ID returns the provider-issued sandbox identifier.
	ID() string
	// Health verifies the sandbox is alive and responding. The context
	// carries the probe deadline.
	Health(ctx context.Context) error
	// Exec runs a shell command inside the sandbox.
	Exec(ctx context.Context, command string) (ExecResult, error)
	// Terminate destroys the sandbox on the provider side.
	Terminate(ctx context.Context) error
}

// Client provisions and reattaches sandboxes. All calls are network RPCs
// against the external sandbox provider.
type Client interface {
	// Create provisions a fresh sandbox.
	Create(ctx context.Context, req CreateRequest) (Sandbox, error)
	// Connect re-establishes a session against a previously provisioned
	// sandbox, resuming it if the provider paused it.
	Connect(ctx context.Context, sandboxID string) (Sandbox, error)
}

// TransientError marks a provider failure worth retrying, such as a rate
// limit or a gateway timeout. Terminal failures (bad credentials, invalid
// template) are returned bare.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient provider error: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying against the provider.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
