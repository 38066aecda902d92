package handlers

import (
	"context"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

// transformAliases are the keys a transform result is exposed under.
var transformAliases = []string{"result", "response", "output", "transformed"}

type transformBehavior struct{}

// NewTransformHandler returns the handler for transform steps. A step with
// a "jq" program is reshaped locally.
func NewTransformHandler(deps *Deps) *IntentHandler {
	return newIntentHandler(schema.IntentTransform, deps, transformBehavior{})
}

func (transformBehavior) fastPath(ctx context.Context, c *call) (any, bool, error) {
	program := stringOpt(c.input, "jq")
	if program == "" {
		return nil, false, nil
	}
	c.meta["engine"] = c.deps.JQ.Name()
	out, err := c.deps.JQ.Run(ctx, program, c.data)
	if err != nil {
		return nil, true, err
	}
	return transformOutput(out), true, nil
}

func (transformBehavior) system(*call) string {
	return "You transform data exactly as instructed. Preserve every value that the " +
		"instruction does not ask you to change. " + jsonOnly
}

func (transformBehavior) finish(c *call) (any, error) {
	v := c.norm.Value
	if obj, ok := asObject(v); ok && c.norm.Structured() {
		if inner, ok := wrapped(obj, c.declaredKey); ok {
			v = inner
		}
	}
	return transformOutput(v), nil
}

// wrapped unwraps {"result": v} style answers. Aliases added by shape
// normalization do not count as extra keys.
func wrapped(obj map[string]any, declaredKey string) (any, bool) {
	var key string
	for k := range obj {
		if k == "items" || (declaredKey != "" && k == declaredKey) {
			continue
		}
		if key != "" {
			return nil, false
		}
		key = k
	}
	for _, alias := range transformAliases {
		if key == alias {
			return obj[key], true
		}
	}
	return nil, false
}

func transformOutput(v any) map[string]any {
	out := make(map[string]any, len(transformAliases))
	for _, k := range transformAliases {
		out[k] = v
	}
	return out
}
