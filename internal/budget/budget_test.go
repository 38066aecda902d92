package budget

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

func TestCheckBudget(t *testing.T) {
	tests := []struct {
		name      string
		budget    schema.Budget
		estimated int
		want      bool
	}{
		{
			name:      "remaining covers estimate",
			budget:    schema.Budget{Allocated: 1000, Used: 200, Remaining: 800},
			estimated: 800,
			want:      true,
		},
		{
			name:      "no overage rejects",
			budget:    schema.Budget{Allocated: 1000, Used: 950, Remaining: 50},
			estimated: 100,
			want:      false,
		},
		{
			name:      "default overage admits within 20 percent",
			budget:    schema.Budget{Allocated: 1000, Used: 950, Remaining: 50, OverageAllowed: true},
			estimated: 100,
			want:      true,
		},
		{
			name:      "default overage rejects past 20 percent",
			budget:    schema.Budget{Allocated: 1000, Used: 950, Remaining: 50, OverageAllowed: true},
			estimated: 300,
			want:      false,
		},
		{
			name:      "explicit overage limit",
			budget:    schema.Budget{Allocated: 1000, Used: 950, Remaining: 50, OverageAllowed: true, OverageLimit: 60},
			estimated: 111,
			want:      false,
		},
		{
			name:      "exact overage ceiling admits",
			budget:    schema.Budget{Allocated: 1000, Used: 950, Remaining: 50, OverageAllowed: true},
			estimated: 250,
			want:      true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CheckBudget(tc.budget, tc.estimated))
		})
	}
}

func TestAdmit_Diagnostics(t *testing.T) {
	b := schema.Budget{Allocated: 1000, Used: 950, Remaining: 50, OverageAllowed: true}

	d := Admit(b, 100)
	assert.True(t, d.Allowed)
	assert.True(t, d.UsesOverage)
	assert.Equal(t, 200, d.OverageLimit)
	assert.Equal(t, 1200, d.CeilingTotal)

	d = Admit(b, 300)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason(), "Insufficient budget")
	assert.Contains(t, d.Reason(), "1200")

	d = Admit(schema.Budget{Allocated: 1000, Used: 950, Remaining: 50}, 100)
	assert.False(t, d.Allowed)
	assert.Equal(t, "Insufficient budget: estimated 100 tokens, remaining 50", d.Reason())
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 1, EstimateTokens("日本語"))
}

func TestCheckBudget_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("monotonic in estimate", prop.ForAll(
		func(allocated, used, estimate, delta int, overage bool) bool {
			b := schema.Budget{
				Allocated:      allocated,
				Used:           used,
				Remaining:      allocated - used,
				OverageAllowed: overage,
			}
			if CheckBudget(b, estimate+delta) {
				return CheckBudget(b, estimate)
			}
			return true
		},
		gen.IntRange(0, 100000),
		gen.IntRange(0, 100000),
		gen.IntRange(0, 50000),
		gen.IntRange(0, 50000),
		gen.Bool(),
	))

	properties.Property("remaining always covers itself", prop.ForAll(
		func(allocated, used int) bool {
			b := schema.Budget{Allocated: allocated, Used: used, Remaining: allocated - used}
			return CheckBudget(b, b.Remaining)
		},
		gen.IntRange(0, 100000),
		gen.IntRange(0, 100000),
	))

	properties.Property("overage never exceeds ceiling", prop.ForAll(
		func(allocated, used, estimate int) bool {
			b := schema.Budget{Allocated: allocated, Used: used, Remaining: allocated - used, OverageAllowed: true}
			d := Admit(b, estimate)
			if !d.UsesOverage {
				return true
			}
			return used+estimate <= allocated+b.EffectiveOverageLimit()
		},
		gen.IntRange(0, 100000),
		gen.IntRange(0, 100000),
		gen.IntRange(0, 50000),
	))

	properties.TestingRun(t)
}
