package handlers

import (
	"context"
	"strings"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

type enrichBehavior struct{}

// NewEnrichHandler returns the handler for enrich steps.
func NewEnrichHandler(deps *Deps) *IntentHandler {
	return newIntentHandler(schema.IntentEnrich, deps, enrichBehavior{})
}

func (enrichBehavior) prepare(_ context.Context, c *call) error {
	kind := stringOpt(c.input, "type")
	if kind == "" {
		kind = classifyEnrichment(c.instruction + " " + serialize(c.input["fields"]))
	}
	c.variant = kind
	return nil
}

func (enrichBehavior) system(c *call) string {
	return "You enrich records with additional " + c.variant + " attributes. Keep every original field and value, " +
		"add new fields only, and use null when a value cannot be determined. " +
		jsonOnly + ` Use the shape {"enriched": <record or list of records>}.`
}

func (enrichBehavior) user(c *call) string {
	instruction := c.instruction
	if instruction == "" {
		instruction = "Enrich the data."
	}
	var fields string
	if fs := stringsOpt(c.input, "fields"); len(fs) > 0 {
		fields = "Fields to add: " + strings.Join(fs, ", ")
	}
	return userPrompt(instruction, c.data, fields)
}

func (enrichBehavior) finish(c *call) (any, error) {
	enriched := c.norm.Value
	if obj, ok := asObject(enriched); ok && c.norm.Structured() {
		if inner, ok := obj["enriched"]; ok {
			enriched = inner
		}
	}
	return map[string]any{
		"enriched":    enriched,
		"type":        c.variant,
		"fieldsAdded": addedFields(c.data, enriched),
		"metadata": map[string]any{
			"source":     "llm",
			"model":      c.resp.Model,
			"structured": c.norm.Structured(),
		},
	}, nil
}

// addedFields lists keys present in enriched but not in original. Lists are
// compared by their first element.
func addedFields(original, enriched any) []string {
	if arr, ok := original.([]any); ok && len(arr) > 0 {
		original = arr[0]
	}
	if arr, ok := enriched.([]any); ok && len(arr) > 0 {
		enriched = arr[0]
	}
	after, ok := asObject(enriched)
	if !ok {
		return []string{}
	}
	before, _ := asObject(original)

	added := []string{}
	for _, k := range sortedKeys(after) {
		if _, had := before[k]; !had {
			added = append(added, k)
		}
	}
	return added
}
