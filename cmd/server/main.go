// Package main is the entry point for the runbox MCP server.
//
// The runbox server executes untrusted user code in disposable, resource-
// constrained, network-isolated containers and returns the captured output.
// The server supports both stdio and HTTP transports.
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

	"github.com/dsolodov/runbox/config"
	"github.com/dsolodov/runbox/logger"
	"github.com/dsolodov/runbox/mcpserver"
	"github.com/dsolodov/runbox/sandbox"
)

// newContainerEngine constructs the shared container-engine client and ties
// its shutdown to the fx lifecycle.
func newContainerEngine(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (sandbox.ContainerAPI, error) {
	cli, err := sandbox.NewEngineClient(log, cfg.Sandbox.DockerHost)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return cli.Close()
		},
	})
	return cli, nil
}

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Container engine client
			newContainerEngine,

			// Execution engine based on config
			sandbox.NewFromConfig,

			// MCP Server
			mcpserver.New,
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
