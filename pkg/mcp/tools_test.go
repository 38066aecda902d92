package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgentsPilot/neuronforge-sub017/internal/provider"
	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

// --- Helpers ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func stepArgs(intent string, input map[string]any) map[string]any {
	return map[string]any{
		"run_id":  "run-1",
		"step_id": "step2",
		"intent":  intent,
		"input":   input,
		"routing": map[string]any{"model": "claude-haiku-4", "provider": "anthropic"},
		"budget":  map[string]any{"allocated": 5000, "used": 0, "remaining": 5000},
	}
}

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}

// --- step.execute ---

func TestExecuteTool(t *testing.T) {
	static := provider.NewStatic("Invoices grew 12%.")
	s := newTestServer(t, static)

	args := stepArgs("summarize", map[string]any{"prompt": "Summarize: {{step1.data}}"})
	args["outputs"] = map[string]any{"step1": map[string]any{"data": "Invoices grew 12% month over month."}}

	result, err := s.handleExecute(context.Background(), buildRequest(toolExecute, args))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	var res schema.HandlerResult
	unmarshalResult(t, result, &res)
	assert.True(t, res.Success)
	assert.Equal(t, "Invoices grew 12%.", res.Output.(map[string]any)["summary"])
	assert.Equal(t, 1, static.CallCount())
	assert.Contains(t, static.LastCall().Messages[0].Content, "month over month")
}

func TestExecuteTool_DeterministicStep(t *testing.T) {
	static := provider.NewStatic("unused")
	s := newTestServer(t, static)

	args := stepArgs("filter", map[string]any{
		"predicate": "item.score >= 0.5",
		"data":      []any{map[string]any{"score": 0.2}, map[string]any{"score": 0.9}},
	})
	result, err := s.handleExecute(context.Background(), buildRequest(toolExecute, args))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var res schema.HandlerResult
	unmarshalResult(t, result, &res)
	out := res.Output.(map[string]any)
	assert.Len(t, out["filtered"], 1)
	assert.Equal(t, float64(1), out["removed"])
	assert.Zero(t, static.CallCount())
}

func TestExecuteTool_FailedStepIsError(t *testing.T) {
	s := newTestServer(t, provider.NewFailing(provider.NewProviderError("anthropic", "messages.new", 500, "", "overloaded", nil)))

	result, err := s.handleExecute(context.Background(),
		buildRequest(toolExecute, stepArgs("summarize", map[string]any{"prompt": "Summarize", "data": "abc"})))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	var res schema.HandlerResult
	unmarshalResult(t, result, &res)
	assert.False(t, res.Success)
	assert.Equal(t, schema.ErrCodeProvider, res.ErrorCode)
}

func TestExecuteTool_InvalidDocument(t *testing.T) {
	s := newTestServer(t, provider.NewStatic("ok"))

	tests := []struct {
		name string
		args map[string]any
	}{
		{"empty", nil},
		{"missing routing", map[string]any{
			"step_id": "s", "intent": "summarize",
			"budget": map[string]any{"allocated": 1, "used": 0, "remaining": 1},
		}},
		{"unknown intent", stepArgs("translate", nil)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleExecute(context.Background(), buildRequest(toolExecute, tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}

// --- step.validate ---

func TestValidateTool(t *testing.T) {
	static := provider.NewStatic("unused")
	s := newTestServer(t, static)

	args := stepArgs("extract", map[string]any{"instruction": "Extract {{step1.text}} and {{step9.rows}}"})
	args["outputs"] = map[string]any{"step1": map[string]any{"text": "a@x.com"}}
	args["expected_output"] = map[string]any{
		"type":       "object",
		"properties": map[string]any{"emails": map[string]any{"type": "array"}},
	}

	result, err := s.handleValidate(context.Background(), buildRequest(toolValidate, args))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out map[string]any
	unmarshalResult(t, result, &out)
	assert.Equal(t, true, out["valid"])
	assert.Equal(t, true, out["handler_registered"])
	assert.Equal(t, "emails", out["declared_output_key"])
	assert.Equal(t, float64(2), out["references"])
	assert.Equal(t, []any{"{{step9.rows}}"}, out["unresolved_refs"])
	assert.Zero(t, static.CallCount())
}

func TestValidateTool_RejectsLedger(t *testing.T) {
	s := newTestServer(t, provider.NewStatic("unused"))

	args := stepArgs("summarize", map[string]any{"prompt": "x"})
	args["budget"] = map[string]any{"allocated": 100, "used": 20, "remaining": 100}

	result, err := s.handleValidate(context.Background(), buildRequest(toolValidate, args))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out map[string]any
	unmarshalResult(t, result, &out)
	assert.Equal(t, false, out["valid"])
	assert.Equal(t, schema.ErrCodeValidation, out["error_code"])
}

// --- intents.list ---

func TestIntentsTool(t *testing.T) {
	s := newTestServer(t, provider.NewStatic("ok"))

	result, err := s.handleIntents(context.Background(), buildRequest(toolIntents, nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out struct {
		Intents []struct {
			Intent      string `json:"intent"`
			Description string `json:"description"`
		} `json:"intents"`
	}
	unmarshalResult(t, result, &out)
	require.Len(t, out.Intents, len(schema.AllIntents()))
	assert.Equal(t, "aggregate", out.Intents[0].Intent)
	for _, it := range out.Intents {
		assert.NotEmpty(t, it.Description, it.Intent)
	}
}

func TestIntentDescriptionsCoverEveryIntent(t *testing.T) {
	for _, intent := range schema.AllIntents() {
		assert.NotEmpty(t, intentDescriptions[intent], intent)
	}
}
