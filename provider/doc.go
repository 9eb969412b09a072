// Package provider implements the sandbox provider client.
//
// The provider package isolates the rest of the application from the remote
// sandbox provider's API. It defines the narrow Client and Sandbox interfaces
// the pool consumes and provides an HTTP implementation with per-call
// timeouts, API-key authentication, and transient-error classification so the
// pool can retry with backoff. Sandbox templates (image, resource limits) are
// loaded from a YAML manifest.
//
// Usage:
//
//	client, err := provider.NewHTTPClient(logger, &cfg.Provider)
//	sb, err := client.Create(ctx, provider.CreateRequest{Template: "base"})
//	err = sb.Health(ctx)
package provider
