package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

// Variables a condition can read. Absent ones are bound to an empty map so
// that has() and size() work without nil checks in the expression.
//
//	input  the step's resolved input payload
//	data   the step's primary data value
//	steps  prior step outputs keyed by step ID
//	run    run_id and step_id
var celVariables = []string{"input", "data", "steps", "run"}

// CELEngine evaluates the explicit condition of conditional steps.
type CELEngine struct {
	env      *cel.Env
	programs *programCache[cel.Program]
}

func NewCELEngine() (*CELEngine, error) {
	obj := cel.MapType(cel.StringType, cel.DynType)
	env, err := cel.NewEnv(
		cel.Variable("input", obj),
		cel.Variable("data", cel.DynType),
		cel.Variable("steps", obj),
		cel.Variable("run", obj),
	)
	if err != nil {
		return nil, fmt.Errorf("cel environment: %w", err)
	}

	e := &CELEngine{env: env}
	e.programs = newProgramCache(e.compile)
	return e, nil
}

func (e *CELEngine) Name() string { return "cel" }

func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, emptyExpression(e.Name())
	}
	prg, err := e.programs.get(expression)
	if err != nil {
		return nil, err
	}

	vars := make(map[string]any, len(celVariables))
	for _, name := range celVariables {
		if v := data[name]; v != nil {
			vars[name] = v
		} else {
			vars[name] = map[string]any{}
		}
	}

	val, _, err := prg.ContextEval(ctx, vars)
	if err != nil {
		return nil, expressionError(schema.ErrCodeExecution, e.Name(), "evaluation", expression, err)
	}
	return val.Value(), nil
}

// EvaluateBool is Evaluate for conditions: a non-boolean result is a
// validation error.
func (e *CELEngine) EvaluateBool(ctx context.Context, expression string, data map[string]any) (bool, error) {
	out, err := e.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	if b, ok := out.(bool); ok {
		return b, nil
	}
	return false, schema.NewErrorf(schema.ErrCodeValidation, "condition %q returned %T, want bool", expression, out).
		WithDetails(map[string]any{"expression": expression, "engine": e.Name()})
}

func (e *CELEngine) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if err := issues.Err(); err != nil {
		return nil, expressionError(schema.ErrCodeValidation, e.Name(), "compile", expression, err)
	}
	prg, err := e.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, expressionError(schema.ErrCodeValidation, e.Name(), "compile", expression, err)
	}
	return prg, nil
}

var _ Engine = (*CELEngine)(nil)
