package handlers

import (
	"context"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

type extractBehavior struct{}

// NewExtractHandler returns the handler for extract steps: structured data
// pulled out of text, documents or images.
func NewExtractHandler(deps *Deps) *IntentHandler {
	return newIntentHandler(schema.IntentExtract, deps, extractBehavior{})
}

func (extractBehavior) prepare(_ context.Context, c *call) error {
	c.images = detectImages(c.input)
	if len(c.images) > 0 {
		c.meta["vision"] = true
		c.meta["image_count"] = len(c.images)
		// The image payload travels as blocks, not as prompt text.
		c.data = withoutImages(c.data)
	}

	if s, ok := c.data.(string); ok {
		cleaned, removed := stripGarbage(s)
		if removed > 0 {
			c.meta["garbage_stripped"] = removed
		}
		c.data = cleaned
		c.meta["input_chars"] = len([]rune(cleaned))
	}
	return nil
}

func (extractBehavior) system(c *call) string {
	p := "You extract structured data from the input exactly as it appears. " +
		"Never invent values; use null for anything missing. " + jsonOnly
	if c.declaredKey != "" {
		p += " Put the extracted records in an array under \"" + c.declaredKey + "\"."
	}
	if len(c.images) > 0 {
		p += " The input includes images; read text and values from them."
	}
	return p
}

func (extractBehavior) user(c *call) string {
	instruction := c.instruction
	if instruction == "" {
		instruction = "Extract the relevant fields from the data."
	}
	var schemaHint string
	if c.sc.ExpectedOutput != nil {
		schemaHint = "Output JSON Schema:\n" + renderData(c.sc.ExpectedOutput)
	}
	return userPrompt(instruction, c.data, schemaHint)
}

func (extractBehavior) finish(c *call) (any, error) {
	out := c.norm.Value
	if c.sc.ExpectedOutput != nil && c.norm.Structured() {
		violations, err := c.deps.Schemas.Check(out, c.sc.ExpectedOutput)
		if err != nil {
			c.meta["schema_error"] = err.Error()
		} else if len(violations) > 0 {
			c.meta["schema_violations"] = violations
		}
	}
	return out, nil
}

// withoutImages drops image-bearing values from data so the prompt text
// does not repeat base64 payloads.
func withoutImages(data any) any {
	switch x := data.(type) {
	case string:
		if _, ok := parseDataURI(x); ok {
			return nil
		}
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, v := range x {
			if len(detectImages(v)) > 0 && !hasText(v) {
				continue
			}
			out[k] = v
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []any:
		var out []any
		for _, v := range x {
			if len(detectImages(v)) > 0 && !hasText(v) {
				continue
			}
			out = append(out, v)
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return data
}

// hasText reports whether v carries anything besides image payloads.
func hasText(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	for k := range m {
		switch k {
		case "data", "media_type", "mediaType", "mime_type":
		default:
			return true
		}
	}
	return false
}
