package handlers

import (
	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

// Policy is the sampling and sizing configuration of one intent.
type Policy struct {
	Temperature float64 `yaml:"temperature" json:"temperature"`
	// MaxTokens is the output ceiling sent to the provider.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
	// VisionMaxTokens replaces MaxTokens for image-bearing requests.
	VisionMaxTokens int `yaml:"vision_max_tokens,omitempty" json:"vision_max_tokens,omitempty"`
	// OutputAllowance is added to the input estimate at admission.
	OutputAllowance int `yaml:"output_allowance" json:"output_allowance"`
	// Variants maps a classified sub-type (e.g. "creative") to its temperature.
	Variants map[string]float64 `yaml:"variants,omitempty" json:"variants,omitempty"`
}

// TemperatureFor returns the variant temperature, or Temperature.
func (p Policy) TemperatureFor(variant string) float64 {
	if t, ok := p.Variants[variant]; ok {
		return t
	}
	return p.Temperature
}

// PolicyOverride changes selected fields of a Policy. Nil fields keep the
// default.
type PolicyOverride struct {
	Temperature     *float64           `yaml:"temperature"`
	MaxTokens       *int               `yaml:"max_tokens"`
	VisionMaxTokens *int               `yaml:"vision_max_tokens"`
	OutputAllowance *int               `yaml:"output_allowance"`
	Variants        map[string]float64 `yaml:"variants"`
}

// PolicyTable holds the policy of every intent.
type PolicyTable map[schema.Intent]Policy

// DefaultPolicies returns the built-in policy table.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		schema.IntentExtract:   {Temperature: 0.2, MaxTokens: 2000, VisionMaxTokens: 4000, OutputAllowance: 800},
		schema.IntentSummarize: {Temperature: 0.5, MaxTokens: 2000, OutputAllowance: 500},
		schema.IntentGenerate: {Temperature: 0.5, MaxTokens: 4000, OutputAllowance: 1500,
			Variants: map[string]float64{genTechnical: 0.3, genReport: 0.5, genCreative: 0.8}},
		schema.IntentValidate: {Temperature: 0.2, MaxTokens: 1000, OutputAllowance: 300},
		schema.IntentSend: {Temperature: 0.5, MaxTokens: 800, OutputAllowance: 400,
			Variants: map[string]float64{toneFormal: 0.3, toneNeutral: 0.5, toneCasual: 0.7}},
		schema.IntentTransform:   {Temperature: 0.3, MaxTokens: 2000, OutputAllowance: 600},
		schema.IntentConditional: {Temperature: 0.1, MaxTokens: 500, OutputAllowance: 200},
		schema.IntentAggregate:   {Temperature: 0.3, MaxTokens: 1500, OutputAllowance: 500},
		schema.IntentFilter:      {Temperature: 0.2, MaxTokens: 1000, OutputAllowance: 400},
		schema.IntentEnrich:      {Temperature: 0.5, MaxTokens: 2000, OutputAllowance: 600},
	}
}

// For returns the policy for intent, falling back to the default table.
func (t PolicyTable) For(intent schema.Intent) Policy {
	if p, ok := t[intent]; ok {
		return p
	}
	return DefaultPolicies()[intent]
}

// WithOverrides returns a copy of t with overrides applied. Keys are intent
// names; an unknown intent is a validation error.
func (t PolicyTable) WithOverrides(overrides map[string]PolicyOverride) (PolicyTable, error) {
	out := make(PolicyTable, len(t))
	for k, v := range t {
		out[k] = v.clone()
	}

	for name, o := range overrides {
		intent, err := schema.ParseIntent(name)
		if err != nil {
			return nil, err
		}
		p := out.For(intent).clone()
		if o.Temperature != nil {
			if *o.Temperature < 0 || *o.Temperature > 1 {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"policy %s: temperature %.2f outside [0, 1]", intent, *o.Temperature)
			}
			p.Temperature = *o.Temperature
		}
		if o.MaxTokens != nil {
			if *o.MaxTokens <= 0 {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "policy %s: max_tokens must be > 0", intent)
			}
			p.MaxTokens = *o.MaxTokens
		}
		if o.VisionMaxTokens != nil {
			p.VisionMaxTokens = *o.VisionMaxTokens
		}
		if o.OutputAllowance != nil {
			if *o.OutputAllowance < 0 {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "policy %s: output_allowance must be >= 0", intent)
			}
			p.OutputAllowance = *o.OutputAllowance
		}
		for variant, temp := range o.Variants {
			if p.Variants == nil {
				p.Variants = map[string]float64{}
			}
			p.Variants[variant] = temp
		}
		out[intent] = p
	}
	return out, nil
}

func (p Policy) clone() Policy {
	if p.Variants == nil {
		return p
	}
	v := make(map[string]float64, len(p.Variants))
	for k, t := range p.Variants {
		v[k] = t
	}
	p.Variants = v
	return p
}
