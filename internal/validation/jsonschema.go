// Package validation checks step contexts and step data: struct validation of
// StepContext values and JSON Schema (draft 2020-12) validation of wire
// documents and data payloads.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

const stepSchemaURL = "https://neuronforge.dev/schemas/step.json"

// stepSchemaJSON is the JSON Schema for step documents accepted by the CLI
// and the MCP server.
const stepSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://neuronforge.dev/schemas/step.json",
  "type": "object",
  "required": ["step_id", "intent", "routing", "budget"],
  "properties": {
    "run_id": { "type": "string" },
    "step_id": { "type": "string", "minLength": 1 },
    "intent": {
      "type": "string",
      "enum": ["extract", "summarize", "generate", "validate", "send",
               "transform", "conditional", "aggregate", "filter", "enrich"]
    },
    "input": { "type": "object" },
    "expected_output": { "type": "object" },
    "output_key": { "type": "string" },
    "routing": {
      "type": "object",
      "required": ["model", "provider"],
      "properties": {
        "model": { "type": "string", "minLength": 1 },
        "provider": { "type": "string", "minLength": 1 },
        "tier": { "type": "string" },
        "estimated_cost": { "type": "number", "minimum": 0 },
        "estimated_latency_ms": { "type": "integer", "minimum": 0 },
        "max_output_tokens": { "type": "integer", "minimum": 0 }
      }
    },
    "budget": {
      "type": "object",
      "required": ["allocated", "used", "remaining"],
      "properties": {
        "allocated": { "type": "integer", "minimum": 0 },
        "used": { "type": "integer", "minimum": 0 },
        "remaining": { "type": "integer", "minimum": 0 },
        "overage_allowed": { "type": "boolean" },
        "overage_limit": { "type": "integer", "minimum": 0 }
      },
      "additionalProperties": false
    },
    "memory": { "type": "object" },
    "outputs": { "type": "object" }
  },
  "additionalProperties": false
}`

// SchemaValidator validates step documents and arbitrary data against JSON
// Schemas. Compiled schemas are cached. It is safe for concurrent use.
type SchemaValidator struct {
	stepSchema *jsonschema.Schema

	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewSchemaValidator creates a SchemaValidator with the step schema pre-compiled.
func NewSchemaValidator() (*SchemaValidator, error) {
	c := newCompiler()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(stepSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal step schema: %w", err)
	}
	if err := c.AddResource(stepSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add step schema resource: %w", err)
	}
	stepSchema, err := c.Compile(stepSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile step schema: %w", err)
	}

	return &SchemaValidator{
		stepSchema: stepSchema,
		cache:      make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateStepDocument validates a raw step document (CLI file or MCP
// arguments) before it is decoded into a StepContext.
func (v *SchemaValidator) ValidateStepDocument(raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "step document is not valid JSON").WithCause(err)
	}
	if err := v.stepSchema.Validate(doc); err != nil {
		return toEngineError(err)
	}
	return nil
}

// Check validates data against schemaDoc (a decoded JSON Schema) and returns
// the violations, each prefixed with its instance location. The error is
// non-nil only when the schema itself is unusable.
func (v *SchemaValidator) Check(data any, schemaDoc any) ([]string, error) {
	if schemaDoc == nil {
		return nil, nil
	}
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "schema is not serializable").WithCause(err)
	}

	compiled, err := v.getOrCompile(raw)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "invalid JSON schema").WithCause(err)
	}

	doc, err := toJSONValue(data)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "data is not serializable").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return []string{err.Error()}, nil
		}
		return collectViolations(verr), nil
	}
	return nil, nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *SchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Fresh compiler and URL per schema to avoid resource collisions.
	url := fmt.Sprintf("neuronforge://data-schema/%d", len(v.cache))
	c := newCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

// DeclaredOutputKey derives the key a step's expected output exposes its
// primary array under: the single array-typed property of an object schema.
func DeclaredOutputKey(schemaDoc map[string]any) string {
	props, ok := schemaDoc["properties"].(map[string]any)
	if !ok {
		return ""
	}
	var keys []string
	for name, p := range props {
		pm, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if pm["type"] == "array" {
			keys = append(keys, name)
		}
	}
	if len(keys) != 1 {
		return ""
	}
	return keys[0]
}

func newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON so that numbers become
// json.Number, which the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toEngineError converts a jsonschema.ValidationError into an EngineError.
func toEngineError(err error) *schema.EngineError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	case 1:
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "validation failed with %d errors", len(violations)).
			WithDetails(map[string]any{"violations": violations})
	}
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
