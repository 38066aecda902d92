package provider

import "strings"

// Price is the USD cost per million tokens for one model family.
type Price struct {
	InputPerMTok  float64 `yaml:"input_per_mtok" json:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok" json:"output_per_mtok"`
}

// PriceTable maps model ids or model id prefixes to prices.
type PriceTable map[string]Price

// DefaultAnthropicPrices lists list prices for the Claude families.
var DefaultAnthropicPrices = PriceTable{
	"claude-opus-4":     {InputPerMTok: 15, OutputPerMTok: 75},
	"claude-sonnet-4":   {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-haiku-4":    {InputPerMTok: 1, OutputPerMTok: 5},
	"claude-3-7-sonnet": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-3-5-sonnet": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-3-5-haiku":  {InputPerMTok: 0.8, OutputPerMTok: 4},
	"claude-3-haiku":    {InputPerMTok: 0.25, OutputPerMTok: 1.25},
}

// DefaultOpenAIPrices lists list prices for the GPT families.
var DefaultOpenAIPrices = PriceTable{
	"gpt-4o":       {InputPerMTok: 2.5, OutputPerMTok: 10},
	"gpt-4o-mini":  {InputPerMTok: 0.15, OutputPerMTok: 0.6},
	"gpt-4.1":      {InputPerMTok: 2, OutputPerMTok: 8},
	"gpt-4.1-mini": {InputPerMTok: 0.4, OutputPerMTok: 1.6},
	"gpt-4.1-nano": {InputPerMTok: 0.1, OutputPerMTok: 0.4},
}

// Lookup returns the price for model: an exact entry first, then the
// longest matching prefix.
func (t PriceTable) Lookup(model string) (Price, bool) {
	if p, ok := t[model]; ok {
		return p, true
	}
	best := ""
	for prefix := range t {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return Price{}, false
	}
	return t[best], true
}

// Cost computes the USD cost of a call. Unknown models cost zero.
func (t PriceTable) Cost(model string, inputTokens, outputTokens int) float64 {
	p, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	return float64(inputTokens)*p.InputPerMTok/1e6 + float64(outputTokens)*p.OutputPerMTok/1e6
}

// Merge returns a copy of t with the entries of other added or replaced.
func (t PriceTable) Merge(other PriceTable) PriceTable {
	out := make(PriceTable, len(t)+len(other))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
