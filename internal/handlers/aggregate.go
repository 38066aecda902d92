package handlers

import (
	"context"
	"math"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

type aggregateBehavior struct{}

// NewAggregateHandler returns the handler for aggregate steps. Statistics
// over the items are always computed locally; an "expression" computes the
// aggregate itself with Expr.
func NewAggregateHandler(deps *Deps) *IntentHandler {
	return newIntentHandler(schema.IntentAggregate, deps, aggregateBehavior{})
}

func (aggregateBehavior) prepare(_ context.Context, c *call) error {
	kind := stringOpt(c.input, "type")
	if kind == "" {
		kind = classifyAggregation(c.instruction)
	}
	c.variant = kind
	items, _ := itemsOf(c.data)
	c.meta["dataset_size"] = len(items)
	return nil
}

func (aggregateBehavior) fastPath(ctx context.Context, c *call) (any, bool, error) {
	expression := stringOpt(c.input, "expression")
	if expression == "" {
		return nil, false, nil
	}
	c.meta["engine"] = c.deps.Expr.Name()
	items, _ := itemsOf(c.data)
	out, err := c.deps.Expr.Evaluate(ctx, expression, map[string]any{
		"items": items,
		"data":  c.data,
		"input": c.input,
	})
	if err != nil {
		return nil, true, err
	}
	return aggregateOutput(out, "expression", items, stringOpt(c.input, "field")), true, nil
}

func (aggregateBehavior) system(c *call) string {
	return "You aggregate datasets. Compute the requested " + c.variant + " precisely from the items given; " +
		"never estimate. " + jsonOnly + ` Use the shape {"aggregated": <value>}.`
}

func (aggregateBehavior) finish(c *call) (any, error) {
	v := c.norm.Value
	if obj, ok := asObject(v); ok && c.norm.Structured() {
		for _, k := range []string{"aggregated", "result", "value"} {
			if inner, ok := obj[k]; ok {
				v = inner
				break
			}
		}
	}
	items, _ := itemsOf(c.data)
	return aggregateOutput(v, c.variant, items, stringOpt(c.input, "field")), nil
}

func aggregateOutput(aggregated any, kind string, items []any, field string) map[string]any {
	return map[string]any{
		"aggregated": aggregated,
		"type":       kind,
		"statistics": statistics(items, field),
	}
}

// statistics summarizes the numeric values among items. When field is set,
// object items contribute that field.
func statistics(items []any, field string) map[string]any {
	stats := map[string]any{"count": len(items)}

	var nums []float64
	for _, it := range items {
		v := it
		if m, ok := it.(map[string]any); ok && field != "" {
			v = m[field]
		}
		if f, ok := numeric(v); ok {
			nums = append(nums, f)
		}
	}
	stats["numericCount"] = len(nums)
	if len(nums) == 0 {
		return stats
	}

	sum, lo, hi := 0.0, math.Inf(1), math.Inf(-1)
	for _, n := range nums {
		sum += n
		lo = math.Min(lo, n)
		hi = math.Max(hi, n)
	}
	stats["sum"] = sum
	stats["average"] = sum / float64(len(nums))
	stats["min"] = lo
	stats["max"] = hi
	return stats
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
