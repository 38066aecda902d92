package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/AgentsPilot/neuronforge-sub017/internal/expressions"
	"github.com/AgentsPilot/neuronforge-sub017/internal/validation"
	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

// StepContext is everything one step invocation needs. The scheduler builds
// it once per invocation; handlers treat it as read-only.
type StepContext struct {
	RunID  string        `json:"run_id,omitempty"`
	StepID string        `json:"step_id" validate:"required"`
	Intent schema.Intent `json:"intent" validate:"required,intent"`

	Input map[string]any `json:"input,omitempty"`
	// ExpectedOutput is an optional JSON Schema for the step's output.
	ExpectedOutput map[string]any `json:"expected_output,omitempty"`
	// OutputKey names the declared output key explicitly. When empty it is
	// derived from ExpectedOutput.
	OutputKey string `json:"output_key,omitempty"`

	Routing schema.RoutingDecision `json:"routing"`
	Budget  schema.Budget          `json:"budget"`
	Memory  *MemoryContext         `json:"memory,omitempty"`

	// Execution holds prior step outputs of the run. It is shared, never
	// owned; nil means no prior outputs.
	Execution *expressions.ExecutionContext `json:"-" validate:"-"`
}

// MemoryContext is long-running memory about the agent, rendered into the
// system prompt.
type MemoryContext struct {
	Summary     string         `json:"summary,omitempty"`
	Facts       []string       `json:"facts,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
	RecentRuns  []RunSummary   `json:"recent_runs,omitempty"`
}

// RunSummary describes one earlier run of the same agent.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Outcome     string    `json:"outcome,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// Empty reports whether m carries nothing worth rendering.
func (m *MemoryContext) Empty() bool {
	return m == nil || (m.Summary == "" && len(m.Facts) == 0 && len(m.Preferences) == 0 && len(m.RecentRuns) == 0)
}

// Validate checks required fields, the intent, budget numbers and the
// budget ledger. A step with nothing remaining is rejected.
func (sc *StepContext) Validate() error {
	if sc == nil {
		return schema.NewError(schema.ErrCodeValidation, "step context is nil")
	}

	res := validation.Struct(sc)
	b := sc.Budget
	if !b.Consistent() {
		res.Add("budget.remaining", "ledger",
			fmt.Sprintf("budget.remaining %d does not equal allocated %d minus used %d", b.Remaining, b.Allocated, b.Used))
	}
	if b.Remaining <= 0 {
		res.Add("budget.remaining", "gt", "budget.remaining must be > 0")
	}

	var ee *schema.EngineError
	if err := res.Err(); errors.As(err, &ee) {
		return ee.WithStep(sc.StepID)
	}
	return nil
}

// DeclaredOutputKey returns OutputKey, or the single array property of
// ExpectedOutput.
func (sc *StepContext) DeclaredOutputKey() string {
	if sc.OutputKey != "" {
		return sc.OutputKey
	}
	if sc.ExpectedOutput == nil {
		return ""
	}
	return validation.DeclaredOutputKey(sc.ExpectedOutput)
}
