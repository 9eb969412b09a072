// Package manager provides the process-wide sandbox lifecycle façade.
//
// The manager package assembles the pool, its stats and lock registries, and
// the cleanup scheduler into one Manager exposing GetSandbox, ReleaseSandbox,
// and Stats to the agent's tool layer and to the platform's upload and
// download collaborators. The application normally constructs a Manager
// explicitly through dependency injection; Default offers a race-free lazy
// singleton for callers outside the composition root.
package manager
