// Package budget implements per-step token admission control.
//
// Every function here is pure: the caller owns the Budget value and only the
// scheduler ever updates it after a provider call completes.
package budget

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

// CharsPerToken is the admission heuristic ratio. It is not a billing figure.
const CharsPerToken = 4

// Decision describes an admission check in enough detail for result metadata.
type Decision struct {
	Allowed        bool `json:"allowed"`
	Estimated      int  `json:"estimated"`
	Remaining      int  `json:"remaining"`
	UsesOverage    bool `json:"uses_overage"`
	OverageLimit   int  `json:"overage_limit"`
	CeilingTotal   int  `json:"ceiling_total"`
	OverageAllowed bool `json:"overage_allowed"`
}

// CheckBudget reports whether a call estimated at estimatedTokens may proceed.
//
// The call is allowed when the remaining balance covers it. Otherwise, when
// overage is allowed, it is allowed if used+estimated stays within
// allocated+overageLimit. The result is monotonic in estimatedTokens.
func CheckBudget(b schema.Budget, estimatedTokens int) bool {
	return Admit(b, estimatedTokens).Allowed
}

// Admit is CheckBudget with diagnostics.
func Admit(b schema.Budget, estimatedTokens int) Decision {
	d := Decision{
		Estimated:      estimatedTokens,
		Remaining:      b.Remaining,
		OverageAllowed: b.OverageAllowed,
		CeilingTotal:   b.Allocated,
	}

	if b.Remaining >= estimatedTokens {
		d.Allowed = true
		return d
	}
	if !b.OverageAllowed {
		return d
	}

	d.OverageLimit = b.EffectiveOverageLimit()
	d.CeilingTotal = b.Allocated + d.OverageLimit
	if b.Used+estimatedTokens <= d.CeilingTotal {
		d.Allowed = true
		d.UsesOverage = true
	}
	return d
}

// Reason renders a rejected decision as the user-facing failure message.
func (d Decision) Reason() string {
	if d.OverageAllowed {
		return fmt.Sprintf("Insufficient budget: estimated %d tokens, remaining %d, overage ceiling %d exceeded",
			d.Estimated, d.Remaining, d.CeilingTotal)
	}
	return fmt.Sprintf("Insufficient budget: estimated %d tokens, remaining %d", d.Estimated, d.Remaining)
}

// EstimateTokens approximates the token count of text as runes / 4, rounded up.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) / CharsPerToken))
}
