package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

type validateBehavior struct{}

// NewValidateHandler returns the handler for validate steps. Data with a
// JSON Schema and no free-text rules is checked locally; rules go to the
// model and any schema violations are merged into its verdict.
func NewValidateHandler(deps *Deps) *IntentHandler {
	return newIntentHandler(schema.IntentValidate, deps, validateBehavior{})
}

func (validateBehavior) fastPath(_ context.Context, c *call) (any, bool, error) {
	schemaDoc, ok := c.input["schema"].(map[string]any)
	if !ok || len(stringsOpt(c.input, "rules")) > 0 {
		return nil, false, nil
	}
	violations, err := c.deps.Schemas.Check(c.data, schemaDoc)
	if err != nil {
		return nil, true, err
	}
	return validationOutput(len(violations) == 0, violations, schemaSummary(violations),
		map[string]any{"method": "json_schema"}), true, nil
}

func (validateBehavior) system(*call) string {
	return "You validate data against rules. Check every rule and report each violation " +
		"as one short sentence naming the offending field. " + jsonOnly +
		` Use the shape {"isValid": bool, "violations": [string], "summary": string, "details": object}.`
}

func (validateBehavior) user(c *call) string {
	instruction := c.instruction
	if instruction == "" {
		instruction = "Validate the data."
	}
	var rules string
	if rs := stringsOpt(c.input, "rules"); len(rs) > 0 {
		rules = "Rules:\n- " + strings.Join(rs, "\n- ")
	}
	return userPrompt(instruction, c.data, rules)
}

func (validateBehavior) finish(c *call) (any, error) {
	obj, structured := asObject(c.norm.Value)
	structured = structured && c.norm.Structured()

	valid := false
	var violations []string
	summary := ""
	var details any

	if structured {
		if v, ok := obj["isValid"].(bool); ok {
			valid = v
		} else if v, ok := obj["valid"].(bool); ok {
			valid = v
		}
		violations = violationStrings(obj["violations"])
		summary = firstString(obj, "summary")
		details = obj["details"]
	} else {
		violations = []string{"validator response could not be parsed"}
		summary = responseText(c.norm.Value)
	}

	if schemaDoc, ok := c.input["schema"].(map[string]any); ok {
		schemaViolations, err := c.deps.Schemas.Check(c.data, schemaDoc)
		if err != nil {
			return nil, err
		}
		if len(schemaViolations) > 0 {
			valid = false
			violations = append(violations, schemaViolations...)
		}
	}
	if len(violations) > 0 && structured && summary == "" {
		summary = fmt.Sprintf("%d violation(s) found", len(violations))
	}
	if details == nil {
		details = map[string]any{}
	}
	return validationOutput(valid && len(violations) == 0, violations, summary, details), nil
}

func validationOutput(valid bool, violations []string, summary string, details any) map[string]any {
	if violations == nil {
		violations = []string{}
	}
	return map[string]any{
		"isValid":    valid,
		"violations": violations,
		"summary":    summary,
		"details":    details,
	}
}

func schemaSummary(violations []string) string {
	if len(violations) == 0 {
		return "Data conforms to the schema"
	}
	return fmt.Sprintf("%d schema violation(s) found", len(violations))
}

// violationStrings accepts a list of strings or of objects with a message.
func violationStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, x := range list {
		switch e := x.(type) {
		case string:
			out = append(out, e)
		case map[string]any:
			msg := firstString(e, "message", "description", "rule", "error")
			if field := firstString(e, "field", "path"); field != "" && msg != "" {
				msg = field + ": " + msg
			}
			if msg == "" {
				msg = serialize(e)
			}
			out = append(out, msg)
		default:
			out = append(out, serialize(e))
		}
	}
	return out
}
