package expressions

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

// ExprEngine evaluates filter predicates per item and aggregate reductions
// (sum, count, min, max, groupBy) over a dataset. Programs are compiled
// untyped so one program serves every input shape.
type ExprEngine struct {
	programs *programCache[*vm.Program]
}

func NewExprEngine() *ExprEngine {
	e := &ExprEngine{}
	e.programs = newProgramCache(e.compile)
	return e
}

func (e *ExprEngine) Name() string { return "expr" }

// Evaluate runs expression with every key of data as a top-level variable.
// Unknown variables evaluate to nil.
func (e *ExprEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, emptyExpression(e.Name())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prg, err := e.programs.get(expression)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	out, err := vm.Run(prg, data)
	if err != nil {
		return nil, expressionError(schema.ErrCodeExecution, e.Name(), "evaluation", expression, err)
	}
	return out, nil
}

// Filter keeps the items for which predicate, evaluated with item and
// index bound, is true. A non-boolean result rejects the whole predicate.
func (e *ExprEngine) Filter(ctx context.Context, predicate string, items []any) ([]any, error) {
	kept := make([]any, 0, len(items))
	for i, item := range items {
		out, err := e.Evaluate(ctx, predicate, map[string]any{"item": item, "index": i})
		if err != nil {
			return nil, err
		}
		keep, ok := out.(bool)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "predicate %q returned %T, want bool", predicate, out).
				WithDetails(map[string]any{"expression": predicate, "engine": e.Name(), "index": i})
		}
		if keep {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

func (e *ExprEngine) compile(expression string) (*vm.Program, error) {
	prg, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, expressionError(schema.ErrCodeValidation, e.Name(), "compile", expression, err)
	}
	return prg, nil
}

var _ Engine = (*ExprEngine)(nil)
