// Package main is the entry point for the sandpool MCP server.
//
// The sandpool server manages ephemeral remote code-execution sandboxes for
// an AI coding-agent platform: each (user, project) pair owns at most one
// sandbox, warm sandboxes are reused across requests, sandbox identifiers are
// cached in Redis so a restarted process can reconnect instead of
// provisioning fresh, per-user and global quotas bound resource usage, and a
// background scheduler reclaims idle and expired sandboxes. The pool is
// exposed to the agent's tool layer over stdio or HTTP MCP transports.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main
