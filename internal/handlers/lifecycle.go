// Package handlers executes workflow steps by intent. Every intent handler
// runs the same lifecycle: validate, resolve references, preprocess, an
// optional deterministic fast path, budget admission, prompt build, a single
// provider invocation, output normalization and result packaging.
package handlers

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/AgentsPilot/neuronforge-sub017/internal/budget"
	"github.com/AgentsPilot/neuronforge-sub017/internal/expressions"
	"github.com/AgentsPilot/neuronforge-sub017/internal/logging"
	"github.com/AgentsPilot/neuronforge-sub017/internal/normalize"
	"github.com/AgentsPilot/neuronforge-sub017/internal/provider"
	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

// Handler executes steps of one intent.
type Handler interface {
	Intent() schema.Intent
	Execute(ctx context.Context, sc *StepContext) (*schema.HandlerResult, error)
}

// call carries one invocation through the lifecycle.
type call struct {
	sc          *StepContext
	deps        *Deps
	input       map[string]any
	instruction string
	data        any
	policy      Policy
	variant     string
	declaredKey string
	images      []provider.Image
	meta        map[string]any

	resp    *provider.Response
	norm    normalize.Result
	quality *float64
}

// behavior is what one intent contributes to the lifecycle.
type behavior interface {
	system(c *call) string
	finish(c *call) (any, error)
}

// preparer is implemented by intents that clean input or adjust policy
// before the budget check.
type preparer interface {
	prepare(ctx context.Context, c *call) error
}

// fastPather is implemented by intents that can compute their output
// locally. handled reports whether the fast path applied.
type fastPather interface {
	fastPath(ctx context.Context, c *call) (out any, handled bool, err error)
}

// prompter overrides the default user prompt.
type prompter interface {
	user(c *call) string
}

// IntentHandler runs the shared lifecycle for one intent.
type IntentHandler struct {
	intent  schema.Intent
	deps    *Deps
	b       behavior
	initErr error
}

// newIntentHandler completes deps with defaults. A handler built without a
// provider still constructs; every Execute then reports the missing dependency.
func newIntentHandler(intent schema.Intent, deps *Deps, b behavior) *IntentHandler {
	if deps == nil {
		deps = &Deps{}
	}
	return &IntentHandler{intent: intent, deps: deps, b: b, initErr: deps.complete()}
}

// Intent returns the intent this handler serves.
func (h *IntentHandler) Intent() schema.Intent {
	return h.intent
}

// Execute runs the lifecycle. Expected failures (validation, budget,
// provider) come back as unsuccessful results; the error is always nil.
func (h *IntentHandler) Execute(ctx context.Context, sc *StepContext) (*schema.HandlerResult, error) {
	if h.initErr != nil {
		return schema.FailedResult(h.initErr, map[string]any{"intent": string(h.intent)}), nil
	}
	start := h.deps.Now()
	meta := map[string]any{
		"intent":        string(h.intent),
		"invocation_id": uuid.NewString(),
	}
	fail := func(err error) (*schema.HandlerResult, error) {
		if ee, ok := err.(*schema.EngineError); ok && sc != nil {
			err = ee.WithStep(sc.StepID)
		}
		res := schema.FailedResult(err, meta)
		res.LatencyMs = h.deps.Now().Sub(start).Milliseconds()
		return res, nil
	}

	if sc == nil {
		return fail(schema.NewError(schema.ErrCodeValidation, "step context is nil"))
	}
	ctx = logging.WithStep(ctx, sc.RunID, sc.StepID, string(h.intent))
	log := h.deps.Logger
	meta["model"] = sc.Routing.Model
	meta["provider"] = sc.Routing.Provider

	// Validate
	if err := sc.Validate(); err != nil {
		log.WarnContext(ctx, "step rejected", "error", err)
		return fail(err)
	}
	if sc.Intent != h.intent {
		return fail(schema.NewErrorf(schema.ErrCodeValidation,
			"%s handler cannot execute %s step", h.intent, sc.Intent))
	}

	// Resolve
	res := expressions.Resolve(sc.Input, sc.Execution)
	if res.References > 0 {
		meta["references"] = res.References
	}
	if len(res.Unresolved) > 0 {
		meta["unresolved_refs"] = res.Unresolved
		log.WarnContext(ctx, "unresolved references", "refs", res.Unresolved)
	}
	if len(res.AutoPopulated) > 0 {
		meta["auto_populated"] = res.AutoPopulated
	}
	input := res.Payload
	if input == nil {
		input = map[string]any{}
	}

	c := &call{
		sc:          sc,
		deps:        h.deps,
		input:       input,
		instruction: instructionOf(input),
		data:        dataOf(input),
		policy:      h.deps.Policies.For(h.intent),
		declaredKey: sc.DeclaredOutputKey(),
		meta:        meta,
	}

	// Preprocess
	if p, ok := h.b.(preparer); ok {
		if err := p.prepare(ctx, c); err != nil {
			return fail(err)
		}
	}

	// Deterministic fast path
	if f, ok := h.b.(fastPather); ok {
		out, handled, err := f.fastPath(ctx, c)
		if handled {
			meta["deterministic"] = true
			if err != nil {
				log.WarnContext(ctx, "deterministic evaluation failed", "error", err)
				return fail(err)
			}
			latency := h.deps.Now().Sub(start).Milliseconds()
			log.InfoContext(ctx, "step completed", "deterministic", true, "latency_ms", latency)
			return &schema.HandlerResult{
				Success:   true,
				Output:    out,
				LatencyMs: latency,
				Metadata:  meta,
				Quality:   c.quality,
			}, nil
		}
	}

	// Budget check
	estimated := c.estimateInput() + c.policy.OutputAllowance
	decision := budget.Admit(sc.Budget, estimated)
	meta["estimated_tokens"] = estimated
	if decision.UsesOverage {
		meta["uses_overage"] = true
		meta["overage_limit"] = decision.OverageLimit
	}
	if !decision.Allowed {
		log.WarnContext(ctx, "budget exceeded", "estimated", estimated, "remaining", sc.Budget.Remaining)
		return fail(schema.NewError(schema.ErrCodeBudgetExceeded, decision.Reason()).
			WithDetails(map[string]any{"decision": decision}))
	}

	// Prompt build
	req := h.request(c)

	// Invoke
	log.DebugContext(ctx, "invoking provider", "model", req.Model, "max_tokens", req.MaxTokens)
	resp, err := h.deps.Provider.Invoke(ctx, req)
	if err == nil && resp == nil {
		err = provider.NewProviderError(sc.Routing.Provider, "invoke", 0, provider.KindUnknown, "provider returned no response", nil)
	}
	if err != nil {
		log.WarnContext(ctx, "provider invocation failed", "error", err)
		return fail(providerFailure(err))
	}
	c.resp = resp
	if resp.StopReason != "" {
		meta["stop_reason"] = resp.StopReason
	}

	// Normalize
	c.norm = normalize.Normalize(resp.Text, normalize.Options{DeclaredOutputKey: c.declaredKey})
	meta["normalizer_strategy"] = c.norm.Strategy
	if c.norm.ParseError {
		meta["parse_error"] = true
		meta["normalization"] = schema.ErrCodeNormalization
	}

	out, err := h.b.finish(c)
	if err != nil {
		return fail(err)
	}

	// Result
	in, outTok := resp.InputTokens, resp.OutputTokens
	if in == 0 && outTok == 0 {
		var prompt string
		for _, m := range req.Messages {
			prompt += m.Content
		}
		in = budget.EstimateTokens(req.System + prompt)
		outTok = budget.EstimateTokens(resp.Text)
		meta["tokens_estimated"] = true
	}
	latency := h.deps.Now().Sub(start).Milliseconds()
	log.InfoContext(ctx, "step completed",
		"input_tokens", in, "output_tokens", outTok, "latency_ms", latency, "strategy", c.norm.Strategy)

	return &schema.HandlerResult{
		Success:    true,
		Output:     out,
		TokensUsed: schema.NewTokenUsage(in, outTok),
		Cost:       resp.Cost,
		LatencyMs:  latency,
		Metadata:   meta,
		Quality:    c.quality,
	}, nil
}

// imageTokens approximates the input cost of one image.
const imageTokens = 1600

// estimateInput sizes the resolved input. Images are counted per image
// rather than by their base64 length.
func (c *call) estimateInput() int {
	if len(c.images) == 0 {
		return budget.EstimateTokens(serialize(c.input))
	}
	return budget.EstimateTokens(serialize(withoutImages(c.input))) + imageTokens*len(c.images)
}

func (h *IntentHandler) request(c *call) *provider.Request {
	maxTokens := c.policy.MaxTokens
	if len(c.images) > 0 && c.policy.VisionMaxTokens > 0 {
		maxTokens = c.policy.VisionMaxTokens
	}
	if limit := c.sc.Routing.MaxOutputTokens; limit > 0 && limit < maxTokens {
		maxTokens = limit
	}

	var user string
	if p, ok := h.b.(prompter); ok {
		user = p.user(c)
	} else {
		user = userPrompt(c.instruction, c.data)
	}

	return &provider.Request{
		Model:       c.sc.Routing.Model,
		Provider:    c.sc.Routing.Provider,
		System:      systemPrompt(h.b.system(c), c.sc.Memory),
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: user, Images: c.images}},
		Temperature: c.policy.TemperatureFor(c.variant),
		MaxTokens:   maxTokens,
	}
}

// providerFailure converts a provider error into an EngineError. Errors that
// already carry a code (an open circuit) keep it.
func providerFailure(err error) error {
	var ee *schema.EngineError
	if errors.As(err, &ee) {
		return err
	}
	code := schema.ErrCodeProvider
	details := map[string]any{}
	if pe, ok := provider.AsProviderError(err); ok {
		if pe.Kind() == provider.KindRateLimited {
			code = schema.ErrCodeRateLimited
		}
		details["kind"] = string(pe.Kind())
		details["retryable"] = pe.Retryable()
		if s := pe.HTTPStatus(); s > 0 {
			details["http_status"] = s
		}
	}
	return schema.NewError(code, err.Error()).WithCause(err).WithDetails(details)
}
