package schema

import "errors"

// DefaultOverageRatio is the share of the allocation usable as overage when
// a budget allows overage but does not set a limit.
const DefaultOverageRatio = 0.20

// Budget is the per-step token ledger handed in by the scheduler.
// Handlers read it and never mutate it; the scheduler updates Used after a call.
type Budget struct {
	Allocated      int  `json:"allocated" validate:"gte=0"`
	Used           int  `json:"used" validate:"gte=0"`
	Remaining      int  `json:"remaining" validate:"gte=0"`
	OverageAllowed bool `json:"overage_allowed"`
	// OverageLimit is the extra tokens allowed past Allocated. Zero means
	// DefaultOverageRatio of Allocated.
	OverageLimit int `json:"overage_limit,omitempty" validate:"gte=0"`
}

// EffectiveOverageLimit returns OverageLimit, or the default share of
// Allocated when unset.
func (b Budget) EffectiveOverageLimit() int {
	if b.OverageLimit > 0 {
		return b.OverageLimit
	}
	return int(float64(b.Allocated) * DefaultOverageRatio)
}

// Consistent reports whether Remaining == Allocated - Used.
func (b Budget) Consistent() bool {
	return b.Remaining == b.Allocated-b.Used
}

// RoutingDecision is the model selection produced upstream. The engine
// treats it as opaque beyond these fields.
type RoutingDecision struct {
	Model              string  `json:"model" validate:"required"`
	Provider           string  `json:"provider" validate:"required"`
	Tier               string  `json:"tier,omitempty"`
	EstimatedCost      float64 `json:"estimated_cost,omitempty"`
	EstimatedLatencyMs int64   `json:"estimated_latency_ms,omitempty"`
	// MaxOutputTokens caps the intent's output ceiling when positive.
	MaxOutputTokens int `json:"max_output_tokens,omitempty" validate:"gte=0"`
}

// TokenUsage reports the tokens consumed by one provider invocation.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// NewTokenUsage builds a TokenUsage with Total = input + output.
func NewTokenUsage(input, output int) TokenUsage {
	return TokenUsage{Input: input, Output: output, Total: input + output}
}

// HandlerResult is the outcome of executing one step.
type HandlerResult struct {
	Success    bool           `json:"success"`
	Output     any            `json:"output"`
	TokensUsed TokenUsage     `json:"tokens_used"`
	Cost       float64        `json:"cost"`
	LatencyMs  int64          `json:"latency_ms"`
	Error      string         `json:"error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Quality    *float64       `json:"quality,omitempty"`
}

// FailedResult builds an unsuccessful result from err. The message and code
// are taken from the first EngineError in the chain when present.
func FailedResult(err error, metadata map[string]any) *HandlerResult {
	res := &HandlerResult{
		Success:   false,
		Error:     err.Error(),
		ErrorCode: CodeOf(err),
		Metadata:  metadata,
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		res.Error = ee.Message
	}
	return res
}
