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

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/sandpool/cache"
	"github.com/isdmx/sandpool/config"
	"github.com/isdmx/sandpool/logger"
	"github.com/isdmx/sandpool/manager"
	"github.com/isdmx/sandpool/mcpserver"
	"github.com/isdmx/sandpool/provider"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Sandbox provider client
			func(log *zap.Logger, cfg *config.Config) (provider.Client, error) {
				return provider.NewHTTPClient(log, &cfg.Provider)
			},

			// Distributed cache store based on config
			cache.NewStore,

			// Sandbox lifecycle manager
			manager.New,

			// MCP Server
			mcpserver.New,
		),

		// Tie the manager's cleanup scheduler and shutdown draining to the
		// application lifecycle
		fx.Invoke(
			func(lc fx.Lifecycle, mgr *manager.Manager, store cache.Store) {
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						mgr.Start()
						return nil
					},
					OnStop: func(ctx context.Context) error {
						mgr.Shutdown(ctx)
						return store.Close()
					},
				})
			},
		),

		// Start the appropriate transport based on config
		fx.Invoke(
			func(cfg *config.Config, server *mcpserver.MCPServer) {
				switch cfg.Server.Transport {
				case "stdio":
					// Use fx to run this as a background task
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported transport: " + cfg.Server.Transport)
				}
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}
