package handlers

import (
	"context"
	"strings"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

const (
	branchThen = "then"
	branchElse = "else"
)

type conditionalBehavior struct{}

// NewConditionalHandler returns the handler for conditional steps. The
// result is always a boolean: an "expression" is evaluated with CEL,
// otherwise the model decides and anything unparseable counts as false.
func NewConditionalHandler(deps *Deps) *IntentHandler {
	return newIntentHandler(schema.IntentConditional, deps, conditionalBehavior{})
}

func (conditionalBehavior) fastPath(ctx context.Context, c *call) (any, bool, error) {
	expression := stringOpt(c.input, "expression")
	if expression == "" {
		return nil, false, nil
	}
	c.meta["engine"] = c.deps.CEL.Name()
	vars := map[string]any{
		"input": c.input,
		"data":  c.data,
		"steps": c.sc.Execution.Snapshot(),
		"run":   map[string]any{"run_id": c.sc.RunID, "step_id": c.sc.StepID},
	}
	ok, err := c.deps.CEL.EvaluateBool(ctx, expression, vars)
	if err != nil {
		// A condition that compiles but cannot be evaluated against this
		// data (missing key, type mismatch) takes the else branch.
		if schema.CodeOf(err) != schema.ErrCodeExecution || ctx.Err() != nil {
			return nil, true, err
		}
		c.meta["expression_error"] = err.Error()
		return conditionOutput(false, "Expression could not be evaluated: "+err.Error(), 0), true, nil
	}
	return conditionOutput(ok, "Evaluated expression: "+expression, 1.0), true, nil
}

func (conditionalBehavior) system(*call) string {
	return "You evaluate a single yes/no condition against the data. Decide strictly from the data given. " +
		jsonOnly + ` Use the shape {"result": boolean, "reasoning": string, "confidence": number between 0 and 1}.`
}

func (conditionalBehavior) user(c *call) string {
	condition := c.instruction
	if condition == "" {
		condition = stringOpt(c.input, "condition")
	}
	return userPrompt("Condition: "+condition, c.data)
}

func (conditionalBehavior) finish(c *call) (any, error) {
	obj, ok := asObject(c.norm.Value)
	if !ok || !c.norm.Structured() {
		return conditionOutput(false, "Condition response could not be parsed", 0), nil
	}

	result, ok := boolValue(obj["result"])
	if !ok {
		return conditionOutput(false, "Condition response had no boolean result", 0), nil
	}

	confidence := 0.5
	if f, ok := obj["confidence"].(float64); ok && f >= 0 && f <= 1 {
		confidence = f
	}
	return conditionOutput(result, firstString(obj, "reasoning", "reason", "explanation"), confidence), nil
}

func conditionOutput(result bool, reasoning string, confidence float64) map[string]any {
	branch := branchElse
	if result {
		branch = branchThen
	}
	return map[string]any{
		"result":     result,
		"reasoning":  reasoning,
		"confidence": confidence,
		"branch":     branch,
	}
}

// boolValue accepts JSON booleans and the strings "true"/"false"/"yes"/"no".
func boolValue(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
	case float64:
		if x == 0 || x == 1 {
			return x == 1, true
		}
	}
	return false, false
}
