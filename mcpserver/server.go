package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/sandpool/config"
	"github.com/isdmx/sandpool/manager"
	"github.com/isdmx/sandpool/pool"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	manager   *manager.Manager
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, mgr *manager.Manager) (*MCPServer, error) {
	s := &MCPServer{
		config:  cfg,
		logger:  logger,
		manager: mgr,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.Int("pool.max_per_user", cfg.Pool.MaxPerUser),
		zap.Int("pool.max_total", cfg.Pool.MaxTotal),
		zap.Int("pool.idle_timeout_sec", cfg.Pool.IdleTimeoutSec),
		zap.Int("pool.max_sandbox_age_sec", cfg.Pool.MaxSandboxAgeSec),
		zap.String("provider.base_url", cfg.Provider.BaseURL),
		zap.String("provider.template", cfg.Provider.Template),
		zap.Bool("redis.enabled", cfg.Redis.Enabled))

	// Create the MCP server
	s.mcpServer = server.NewMCPServer("sandpool", "A multi-tenant sandbox pool server")

	s.registerGetSandboxTool()
	s.registerReleaseSandboxTool()
	s.registerRunCommandTool()
	s.registerSandboxStatsTool()

	return s, nil
}

func tenantSchema() map[string]any {
	return map[string]any{
		"user_id": map[string]any{
			"type":        "string",
			"description": "User identifier",
		},
		"project_id": map[string]any{
			"type":        "string",
			"description": "Project identifier",
		},
	}
}

// registerGetSandboxTool registers the get_sandbox tool
func (s *MCPServer) registerGetSandboxTool() {
	tool := mcp.Tool{
		Name:        "get_sandbox",
		Description: "Get or create the sandbox for a user and project",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: tenantSchema(),
			Required:   []string{"user_id", "project_id"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleGetSandbox)
}

// registerReleaseSandboxTool registers the release_sandbox tool
func (s *MCPServer) registerReleaseSandboxTool() {
	tool := mcp.Tool{
		Name:        "release_sandbox",
		Description: "Terminate and forget the sandbox for a user and project",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: tenantSchema(),
			Required:   []string{"user_id", "project_id"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleReleaseSandbox)
}

// registerRunCommandTool registers the run_command tool
func (s *MCPServer) registerRunCommandTool() {
	properties := tenantSchema()
	properties["command"] = map[string]any{
		"type":        "string",
		"description": "Shell command to run inside the sandbox",
	}

	tool := mcp.Tool{
		Name:        "run_command",
		Description: "Run a shell command inside the user's sandbox, provisioning one if needed",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: properties,
			Required:   []string{"user_id", "project_id", "command"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleRunCommand)
}

// registerSandboxStatsTool registers the sandbox_stats tool
func (s *MCPServer) registerSandboxStatsTool() {
	tool := mcp.Tool{
		Name:        "sandbox_stats",
		Description: "Report pool counters and gauges for health monitoring",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}

	s.mcpServer.AddTool(tool, s.handleSandboxStats)
}

func tenantArgs(request mcp.CallToolRequest) (userID, projectID string, err error) {
	userID, err = request.RequireString("user_id")
	if err != nil {
		return "", "", fmt.Errorf("user_id parameter is required: %w", err)
	}
	projectID, err = request.RequireString("project_id")
	if err != nil {
		return "", "", fmt.Errorf("project_id parameter is required: %w", err)
	}
	return userID, projectID, nil
}

// toolError maps the pool error taxonomy onto a tool result the agent can
// act on: validation and quota failures are terminal for this request,
// provider failures are worth retrying later.
func toolError(err error) *mcp.CallToolResult {
	var prefix string
	switch {
	case pool.IsValidation(err):
		prefix = "validation error"
	case pool.IsQuotaExceeded(err):
		prefix = "quota exceeded"
	case pool.IsProviderUnavailable(err):
		prefix = "provider unavailable"
	default:
		prefix = "error"
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: fmt.Sprintf("%s: %v", prefix, err),
			},
		},
		IsError: true,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult marshals v into a text tool result. Tool payloads go through
// encoding/json so arbitrary command output stays valid JSON.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return textResult(string(encoded)), nil
}

type getSandboxResult struct {
	SandboxID string `json:"sandbox_id"`
}

type releaseSandboxResult struct {
	Released bool `json:"released"`
}

type runCommandResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// handleGetSandbox handles the get_sandbox tool
func (s *MCPServer) handleGetSandbox(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, projectID, err := tenantArgs(request)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	s.logger.Info("sandbox requested",
		zap.String("request_id", requestID),
		zap.String("user_id", userID),
		zap.String("project_id", projectID))

	handle, err := s.manager.GetSandbox(ctx, userID, projectID)
	if err != nil {
		s.logger.Warn("sandbox request failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		return toolError(err), nil
	}

	return jsonResult(getSandboxResult{SandboxID: handle.ID()})
}

// handleReleaseSandbox handles the release_sandbox tool
func (s *MCPServer) handleReleaseSandbox(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, projectID, err := tenantArgs(request)
	if err != nil {
		return nil, err
	}

	s.manager.ReleaseSandbox(ctx, userID, projectID)
	return jsonResult(releaseSandboxResult{Released: true})
}

// handleRunCommand handles the run_command tool
func (s *MCPServer) handleRunCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, projectID, err := tenantArgs(request)
	if err != nil {
		return nil, err
	}
	command, err := request.RequireString("command")
	if err != nil {
		return nil, fmt.Errorf("command parameter is required: %w", err)
	}

	handle, err := s.manager.GetSandbox(ctx, userID, projectID)
	if err != nil {
		return toolError(err), nil
	}

	result, err := handle.Exec(ctx, command)
	if err != nil {
		s.logger.Warn("command execution failed",
			zap.String("user_id", userID),
			zap.String("project_id", projectID),
			zap.Error(err))
		return toolError(err), nil
	}

	s.logger.Info("command executed",
		zap.String("user_id", userID),
		zap.String("project_id", projectID),
		zap.String("sandbox_id", handle.ID()),
		zap.Int("exit_code", result.ExitCode))

	return jsonResult(runCommandResult{
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitCode,
	})
}

// handleSandboxStats handles the sandbox_stats tool
func (s *MCPServer) handleSandboxStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.manager.Stats())
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
