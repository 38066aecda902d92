package handlers

import (
	"context"
	"regexp"
	"strings"

	"github.com/AgentsPilot/neuronforge-sub017/internal/budget"
	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

type generateBehavior struct{}

// NewGenerateHandler returns the handler for generate steps. Sampling
// temperature follows the kind of content requested.
func NewGenerateHandler(deps *Deps) *IntentHandler {
	return newIntentHandler(schema.IntentGenerate, deps, generateBehavior{})
}

func (generateBehavior) prepare(_ context.Context, c *call) error {
	kind := stringOpt(c.input, "type")
	if kind == "" {
		kind = classifyGeneration(c.instruction + " " + serialize(c.data))
	}
	c.variant = kind
	c.meta["generation_type"] = kind
	return nil
}

func (generateBehavior) system(c *call) string {
	base := "You produce complete, publication-ready content. Return only the content itself."
	switch c.variant {
	case genTechnical:
		return base + " Be precise and technically accurate; prefer concrete examples and correct terminology."
	case genCreative:
		return base + " Be original and vivid while staying on brief."
	case genReport:
		return base + " Organize the content with headings and short paragraphs; support claims with the provided data."
	default:
		return base + " Write clearly and stay on topic."
	}
}

func (generateBehavior) finish(c *call) (any, error) {
	var generated string
	if obj, ok := asObject(c.norm.Value); ok && c.norm.Structured() {
		generated = firstString(obj, "generated", "content", "text", "body")
	}
	if generated == "" {
		generated = strings.TrimSpace(c.resp.Text)
	}

	quality := generationQuality(generated, c.resp.StopReason)
	c.quality = &quality

	tokens := c.resp.OutputTokens
	if tokens == 0 {
		tokens = budget.EstimateTokens(generated)
	}
	return map[string]any{
		"generated":       generated,
		"quality":         quality,
		"tokensGenerated": tokens,
	}, nil
}

var placeholderPattern = regexp.MustCompile(`(?i)(\[insert|\[your |lorem ipsum|\{\{|xxx|tbd\b)`)

// generationQuality is a 0-1 heuristic built from length, structure,
// completeness and the absence of placeholders.
func generationQuality(text, stopReason string) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}

	score := 0.4 * min(float64(words)/150, 1)

	structure := 0.0
	if strings.Contains(text, "\n\n") {
		structure += 0.15
	}
	for _, line := range strings.Split(text, "\n") {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "#") || strings.HasPrefix(t, "- ") || strings.HasPrefix(t, "* ") || strings.HasPrefix(t, "1.") {
			structure += 0.15
			break
		}
	}
	score += structure

	if stopReason != "max_tokens" {
		score += 0.2
	}
	if !placeholderPattern.MatchString(text) {
		score += 0.1
	}
	return round2(min(score, 1))
}
