// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes the
// execute_code tool as the interface to the execution engine. It uses the
// mark3labs/mcp-go library to handle the protocol details.
package mcpserver

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dsolodov/runbox/config"
	"github.com/dsolodov/runbox/sandbox"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	runner    sandbox.Runner
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, runner sandbox.Runner) (*MCPServer, error) {
	s := &MCPServer{
		config: cfg,
		logger: logger,
		runner: runner,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.Int("server.http_port", s.config.Server.HTTPPort),
		zap.String("sandbox.root", s.config.Sandbox.Root),
		zap.Int("sandbox.timeout_sec", s.config.Sandbox.TimeoutSec),
		zap.Int("sandbox.memory_mb", s.config.Sandbox.MemoryMB),
		zap.Int("sandbox.output_limit_kb", s.config.Sandbox.OutputLimitKB),
	)

	// Create the MCP server
	s.mcpServer = server.NewMCPServer("runbox-executor", "An isolated code execution server")

	// Register the execute_code tool
	s.registerExecuteCodeTool()

	return s, nil
}

// registerExecuteCodeTool registers the execute_code tool
func (s *MCPServer) registerExecuteCodeTool() {
	tool := mcp.Tool{
		Name:        "execute_code",
		Description: "Execute untrusted code in a disposable, network-isolated container",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "User-provided source code",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Runtime language",
					"enum":        sandbox.SupportedLanguages(),
				},
				"timeout_sec": map[string]any{
					"type":        "number",
					"description": "Wall-clock timeout override in seconds (optional)",
				},
			},
			Required: []string{"code", "language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteCode)
}

// handleExecuteCode handles the execute_code tool
func (s *MCPServer) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.Info("code execution requested")

	// Extract parameters
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	language, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}

	req := sandbox.Request{
		Code:     code,
		Language: language,
	}
	if timeoutSec := request.GetFloat("timeout_sec", 0); timeoutSec > 0 {
		req.Timeout = time.Duration(timeoutSec * float64(time.Second))
	}

	// Execute the code; setup failures (unknown language, staging I/O,
	// container create/start) surface as tool errors, everything else is a
	// definitive outcome.
	outcome, err := s.runner.Execute(ctx, req)
	if err != nil {
		s.logger.Error("sandbox execution failed",
			zap.Error(err),
			zap.String("language", language))
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf("Execution failed: %v", err),
				},
			},
			IsError: true,
		}, nil
	}

	s.logger.Info("code execution completed",
		zap.String("language", language),
		zap.String("completion", string(outcome.Kind)),
		zap.Int("exit_code", outcome.ExitCode),
		zap.Int("stdout_len", len(outcome.Stdout)),
		zap.Int("stderr_len", len(outcome.Stderr)))

	// Convert outcome to JSON string for content
	resultJSON := fmt.Sprintf(`{"stdout":%q,"stderr":%q,"completion":%q,"exit_code":%d,"elapsed_ms":%d,"truncated":%t}`,
		outcome.Stdout, outcome.Stderr, string(outcome.Kind), outcome.ExitCode,
		outcome.Elapsed.Milliseconds(), outcome.Truncated)

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: resultJSON,
			},
		},
	}, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
