package mcp

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgentsPilot/neuronforge-sub017/internal/handlers"
	"github.com/AgentsPilot/neuronforge-sub017/internal/provider"
)

func newTestServer(t *testing.T, p provider.Provider) *StepServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps, err := handlers.NewDeps(p, logger)
	require.NoError(t, err)
	reg, err := handlers.NewDefaultRegistry(deps)
	require.NoError(t, err)

	s, err := NewStepServer(ServerDeps{Registry: reg, Schemas: deps.Schemas, Logger: logger, Version: "test"})
	require.NoError(t, err)
	return s
}

func TestNewStepServer(t *testing.T) {
	s := newTestServer(t, provider.NewStatic("ok"))
	require.NotNil(t, s)
	assert.NotNil(t, s.MCPServer())
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.schemas)
}

func TestNewStepServer_RequiresRegistry(t *testing.T) {
	_, err := NewStepServer(ServerDeps{})
	assert.Error(t, err)
}

func TestToolRegistration(t *testing.T) {
	s := newTestServer(t, provider.NewStatic("ok"))

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 3)

	tests := []struct {
		name        string
		description string
	}{
		{toolExecute, "Execute one workflow step through its intent handler"},
		{toolValidate, "Check a step document without executing it"},
		{toolIntents, "List the intents with a registered handler"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.name)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}

func TestStepArgumentsRequired(t *testing.T) {
	tool := executeTool()
	assert.ElementsMatch(t, []string{"step_id", "intent", "routing", "budget"}, tool.InputSchema.Required)
	assert.Contains(t, tool.InputSchema.Properties, "outputs")
	assert.Contains(t, tool.InputSchema.Properties, "memory")
}
