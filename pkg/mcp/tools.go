package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AgentsPilot/neuronforge-sub017/internal/expressions"
	"github.com/AgentsPilot/neuronforge-sub017/internal/handlers"
	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

var intentDescriptions = map[schema.Intent]string{
	schema.IntentExtract:     "Pull structured data out of text, documents or images",
	schema.IntentSummarize:   "Condense content into a short factual summary",
	schema.IntentGenerate:    "Produce new content such as reports, copy or code",
	schema.IntentValidate:    "Check data against a JSON Schema or free-text rules",
	schema.IntentSend:        "Compose a message for delivery by the caller",
	schema.IntentTransform:   "Reshape data, locally with jq or through the model",
	schema.IntentConditional: "Decide a yes/no condition and pick the then/else branch",
	schema.IntentAggregate:   "Reduce a dataset to a value with statistics",
	schema.IntentFilter:      "Keep the items of a list that match criteria",
	schema.IntentEnrich:      "Add derived attributes to records",
}

// handleExecute decodes the step document and runs it. A failed step is
// returned as an error result carrying the full HandlerResult.
func (s *StepServer) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sc, errResult := s.decode(req)
	if errResult != nil {
		return errResult, nil
	}

	res := s.registry.Execute(ctx, sc)
	if !res.Success {
		s.logger.WarnContext(ctx, "step failed", "step_id", sc.StepID, "intent", string(sc.Intent), "code", res.ErrorCode)
	}

	out, err := marshalResult(res)
	if err != nil {
		return out, err
	}
	out.IsError = !res.Success
	return out, nil
}

// handleValidate reports whether a step document would be accepted, and
// which references it holds, without invoking any provider.
func (s *StepServer) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sc, errResult := s.decode(req)
	if errResult != nil {
		return errResult, nil
	}

	if err := sc.Validate(); err != nil {
		return marshalResult(map[string]any{
			"valid":      false,
			"error":      err.Error(),
			"error_code": schema.CodeOf(err),
		})
	}

	res := expressions.Resolve(sc.Input, sc.Execution)
	unresolved := res.Unresolved
	if unresolved == nil {
		unresolved = []string{}
	}
	return marshalResult(map[string]any{
		"valid":               true,
		"step_id":             sc.StepID,
		"intent":              string(sc.Intent),
		"handler_registered":  s.registry.Get(sc.Intent) != nil,
		"declared_output_key": sc.DeclaredOutputKey(),
		"references":          res.References,
		"unresolved_refs":     unresolved,
		"auto_populated":      res.AutoPopulated,
	})
}

// handleIntents lists the intents the registry can execute.
func (s *StepServer) handleIntents(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	registered := s.registry.List()
	intents := make([]map[string]any, 0, len(registered))
	for _, intent := range registered {
		intents = append(intents, map[string]any{
			"intent":      string(intent),
			"description": intentDescriptions[intent],
		})
	}
	return marshalResult(map[string]any{"intents": intents})
}

// --- Helpers ---

// decode turns tool arguments into a StepContext. The error result is
// non-nil when the document is rejected.
func (s *StepServer) decode(req mcp.CallToolRequest) (*handlers.StepContext, *mcp.CallToolResult) {
	args := req.GetArguments()
	if len(args) == 0 {
		return nil, mcp.NewToolResultError("step document is required")
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("step document is not serializable: %v", err))
	}
	sc, err := handlers.DecodeStep(raw, s.schemas)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("invalid step document: %v", err))
	}
	return sc, nil
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
