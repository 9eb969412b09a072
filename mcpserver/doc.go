// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the sandbox pool to the agent's tool layer as
// MCP tools: get_sandbox, release_sandbox, run_command, and sandbox_stats. It
// uses the mark3labs/mcp-go library to handle the protocol details and maps
// the pool's error taxonomy onto tool errors the agent can act on.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, manager)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
