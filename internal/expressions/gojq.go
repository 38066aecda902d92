package expressions

import (
	"context"
	"encoding/json"

	"github.com/itchyny/gojq"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

// GoJQEngine reshapes data for transform steps that carry a jq program.
// Programs run without access to the process environment.
type GoJQEngine struct {
	programs *programCache[*gojq.Code]
}

func NewGoJQEngine() *GoJQEngine {
	e := &GoJQEngine{}
	e.programs = newProgramCache(e.compile)
	return e
}

func (e *GoJQEngine) Name() string { return "jq" }

// Evaluate runs expression with data as its input.
func (e *GoJQEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	return e.Run(ctx, expression, data)
}

// Run feeds input to the program and collapses its outputs: none is nil,
// one is returned as is, several become a []any.
func (e *GoJQEngine) Run(ctx context.Context, expression string, input any) (any, error) {
	outs, err := e.RunAll(ctx, expression, input)
	if err != nil || len(outs) == 0 {
		return nil, err
	}
	if len(outs) == 1 {
		return outs[0], nil
	}
	return outs, nil
}

// RunAll returns every output of the program in order.
func (e *GoJQEngine) RunAll(ctx context.Context, expression string, input any) ([]any, error) {
	if expression == "" {
		return nil, emptyExpression(e.Name())
	}
	code, err := e.programs.get(expression)
	if err != nil {
		return nil, err
	}

	outs := []any{}
	iter := code.RunWithContext(ctx, jqValue(input))
	for v, ok := iter.Next(); ok; v, ok = iter.Next() {
		if err, isErr := v.(error); isErr {
			return nil, expressionError(schema.ErrCodeExecution, e.Name(), "evaluation", expression, err)
		}
		outs = append(outs, v)
	}
	return outs, nil
}

func (e *GoJQEngine) compile(expression string) (*gojq.Code, error) {
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, expressionError(schema.ErrCodeValidation, e.Name(), "parse", expression, err)
	}
	code, err := gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, expressionError(schema.ErrCodeValidation, e.Name(), "compile", expression, err)
	}
	return code, nil
}

// jqValue converts v to the value shapes gojq accepts. Go integers become
// float64 like any JSON number; other types take a JSON round trip.
func jqValue(v any) any {
	switch val := v.(type) {
	case nil, bool, float64, string:
		return v
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return val.String()
		}
		return f
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = jqValue(x)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = jqValue(x)
		}
		return out
	}

	raw, err := json.Marshal(DeepCopy(v))
	if err != nil {
		return nil
	}
	var out any
	if json.Unmarshal(raw, &out) != nil {
		return nil
	}
	return out
}

var _ Engine = (*GoJQEngine)(nil)
