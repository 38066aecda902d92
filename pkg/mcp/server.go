// Package mcp exposes the step engine over the Model Context Protocol.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AgentsPilot/neuronforge-sub017/internal/handlers"
	"github.com/AgentsPilot/neuronforge-sub017/internal/validation"
	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

const (
	toolExecute  = "step.execute"
	toolValidate = "step.validate"
	toolIntents  = "intents.list"
)

// ServerDeps holds the dependencies for creating a StepServer.
type ServerDeps struct {
	Registry *handlers.Registry
	// Schemas validates incoming step documents. Built when nil.
	Schemas *validation.SchemaValidator
	Logger  *slog.Logger
	Version string
}

// StepServer wraps an MCP server with the step engine tools.
type StepServer struct {
	registry  *handlers.Registry
	schemas   *validation.SchemaValidator
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewStepServer creates a StepServer with every tool registered.
func NewStepServer(deps ServerDeps) (*StepServer, error) {
	if deps.Registry == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "mcp server: registry is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	schemas := deps.Schemas
	if schemas == nil {
		sv, err := validation.NewSchemaValidator()
		if err != nil {
			return nil, err
		}
		schemas = sv
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &StepServer{
		registry: deps.Registry,
		schemas:  schemas,
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"stepengine",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("The step engine executes one workflow step per call. Use intents.list to see the "+
			"supported intents, step.validate to check a step document and step.execute to run it. Prior step "+
			"outputs go in outputs and are referenced from input as {{stepId.path}}."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *StepServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *StepServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *StepServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: executeTool(), Handler: s.handleExecute},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: intentsTool(), Handler: s.handleIntents},
	}
}

// --- Tool definitions ---

func intentNames() []string {
	all := schema.AllIntents()
	out := make([]string, len(all))
	for i, intent := range all {
		out[i] = string(intent)
	}
	return out
}

// stepArguments declares the step document fields shared by execute and
// validate.
func stepArguments() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("step_id", mcp.Required(), mcp.Description("ID of the step within its workflow run")),
		mcp.WithString("intent", mcp.Required(), mcp.Enum(intentNames()...), mcp.Description("Semantic category of the step")),
		mcp.WithObject("input", mcp.Description("Step payload; may reference prior outputs as {{stepId.path}}")),
		mcp.WithObject("routing", mcp.Required(), mcp.Description("Model selection: model, provider, optional tier and max_output_tokens")),
		mcp.WithObject("budget", mcp.Required(), mcp.Description("Token ledger: allocated, used, remaining, overage_allowed, overage_limit")),
		mcp.WithString("run_id", mcp.Description("ID of the workflow run")),
		mcp.WithObject("expected_output", mcp.Description("JSON Schema for the step output")),
		mcp.WithString("output_key", mcp.Description("Key the output's primary array is exposed under")),
		mcp.WithObject("memory", mcp.Description("Agent memory: summary, facts, preferences, recent_runs")),
		mcp.WithObject("outputs", mcp.Description("Outputs of completed steps keyed by step ID")),
	}
}

func executeTool() mcp.Tool {
	opts := append([]mcp.ToolOption{mcp.WithDescription("Execute one workflow step through its intent handler")}, stepArguments()...)
	return mcp.NewTool(toolExecute, opts...)
}

func validateTool() mcp.Tool {
	opts := append([]mcp.ToolOption{mcp.WithDescription("Check a step document without executing it")}, stepArguments()...)
	return mcp.NewTool(toolValidate, opts...)
}

func intentsTool() mcp.Tool {
	return mcp.NewTool(toolIntents,
		mcp.WithDescription("List the intents with a registered handler"),
	)
}
