package expressions

import (
	"context"
	"sync"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

// Engine evaluates deterministic expressions inside a step.
// Three implementations: CEL (conditions), GoJQ (transforms), Expr (filter
// predicates and aggregations).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// programCache memoizes compiled programs by their source text. Safe for
// concurrent use; a program is compiled at most once per expression.
type programCache[P any] struct {
	mu       sync.RWMutex
	programs map[string]P
	compile  func(expression string) (P, error)
}

func newProgramCache[P any](compile func(string) (P, error)) *programCache[P] {
	return &programCache[P]{programs: make(map[string]P), compile: compile}
}

func (c *programCache[P]) get(expression string) (P, error) {
	c.mu.RLock()
	prg, ok := c.programs[expression]
	c.mu.RUnlock()
	if ok {
		return prg, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prg, ok := c.programs[expression]; ok {
		return prg, nil
	}
	prg, err := c.compile(expression)
	if err != nil {
		return prg, err
	}
	c.programs[expression] = prg
	return prg, nil
}

func (c *programCache[P]) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}

// expressionError tags an engine failure with the offending expression.
// Compile problems are validation errors; runtime problems are execution
// errors.
func expressionError(code, engine, stage, expression string, cause error) *schema.EngineError {
	return schema.NewErrorf(code, "%s %s failed for %q: %s", engine, stage, expression, cause.Error()).
		WithCause(cause).
		WithDetails(map[string]any{"expression": expression, "engine": engine})
}

func emptyExpression(engine string) *schema.EngineError {
	return schema.NewErrorf(schema.ErrCodeValidation, "empty %s expression", engine)
}
