package handlers

import (
	"context"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

type filterBehavior struct{}

// NewFilterHandler returns the handler for filter steps. A "predicate" is
// applied per item with Expr; otherwise the model selects the items.
func NewFilterHandler(deps *Deps) *IntentHandler {
	return newIntentHandler(schema.IntentFilter, deps, filterBehavior{})
}

func (filterBehavior) prepare(_ context.Context, c *call) error {
	items, _ := itemsOf(c.data)
	c.meta["dataset_size"] = len(items)
	return nil
}

func (filterBehavior) fastPath(ctx context.Context, c *call) (any, bool, error) {
	predicate := stringOpt(c.input, "predicate")
	if predicate == "" {
		return nil, false, nil
	}
	c.meta["engine"] = c.deps.Expr.Name()
	items, _ := itemsOf(c.data)
	kept, err := c.deps.Expr.Filter(ctx, predicate, items)
	if err != nil {
		return nil, true, err
	}
	return filterOutput(kept, len(items), predicate), true, nil
}

func (filterBehavior) system(*call) string {
	return "You filter lists. Keep only the items that satisfy the criteria and copy them unchanged. " +
		jsonOnly + ` Use the shape {"filtered": [items]}.`
}

func (filterBehavior) user(c *call) string {
	criteria := criteriaOf(c)
	return userPrompt("Criteria: "+criteria, c.data)
}

func (filterBehavior) finish(c *call) (any, error) {
	var kept []any
	if c.norm.Structured() {
		if obj, ok := asObject(c.norm.Value); ok {
			if arr, ok := obj["filtered"].([]any); ok {
				kept = arr
			}
		}
		if kept == nil {
			kept, _ = itemsOf(c.norm.Value)
		}
	}
	if kept == nil {
		kept = []any{}
	}
	items, _ := itemsOf(c.data)
	return filterOutput(kept, len(items), criteriaOf(c)), nil
}

func criteriaOf(c *call) string {
	if s := stringOpt(c.input, "criteria"); s != "" {
		return s
	}
	return c.instruction
}

func filterOutput(kept []any, total int, criteria string) map[string]any {
	removed := total - len(kept)
	if removed < 0 {
		removed = 0
	}
	return map[string]any{
		"filtered": kept,
		"removed":  removed,
		"criteria": criteria,
	}
}
