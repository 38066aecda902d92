package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/AgentsPilot/neuronforge-sub017/internal/logging"
	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

// constructors binds every intent to its handler. NewDefaultRegistry refuses
// to build when an intent is missing here.
var constructors = map[schema.Intent]func(*Deps) *IntentHandler{
	schema.IntentExtract:     NewExtractHandler,
	schema.IntentSummarize:   NewSummarizeHandler,
	schema.IntentGenerate:    NewGenerateHandler,
	schema.IntentValidate:    NewValidateHandler,
	schema.IntentSend:        NewSendHandler,
	schema.IntentTransform:   NewTransformHandler,
	schema.IntentConditional: NewConditionalHandler,
	schema.IntentAggregate:   NewAggregateHandler,
	schema.IntentFilter:      NewFilterHandler,
	schema.IntentEnrich:      NewEnrichHandler,
}

// Registry maps each intent to exactly one handler. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[schema.Intent]Handler
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[schema.Intent]Handler),
		logger:   logger,
	}
}

// NewDefaultRegistry builds a Registry holding the handler of every intent.
func NewDefaultRegistry(deps *Deps) (*Registry, error) {
	if deps == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "handler deps are nil")
	}
	if err := deps.complete(); err != nil {
		return nil, err
	}

	r := NewRegistry(deps.Logger)
	for _, intent := range schema.AllIntents() {
		ctor, ok := constructors[intent]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeHandlerNotFound, "no handler constructor for intent %q", intent)
		}
		if err := r.Register(ctor(deps)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register binds h to its intent. Re-registering an intent replaces the
// previous handler and logs a warning.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return schema.NewError(schema.ErrCodeValidation, "handler is nil")
	}
	intent := h.Intent()
	if !intent.Valid() {
		return schema.NewErrorf(schema.ErrCodeValidation, "handler intent %q is not a known intent", intent)
	}

	r.mu.Lock()
	_, replaced := r.handlers[intent]
	r.handlers[intent] = h
	r.mu.Unlock()

	if replaced {
		r.logger.Warn("handler replaced", "intent", string(intent))
	}
	return nil
}

// Unregister removes the handler of intent and reports whether one existed.
func (r *Registry) Unregister(intent schema.Intent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handlers[intent]
	delete(r.handlers, intent)
	return ok
}

// Get returns the handler of intent, or nil.
func (r *Registry) Get(intent schema.Intent) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[intent]
}

// List returns the registered intents, sorted.
func (r *Registry) List() []schema.Intent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.Intent, 0, len(r.handlers))
	for intent := range r.handlers {
		out = append(out, intent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Execute runs sc through the handler of its intent. It never returns an
// error and never panics: a missing handler, a returned error or a panic
// all become an unsuccessful result.
func (r *Registry) Execute(ctx context.Context, sc *StepContext) (res *schema.HandlerResult) {
	if sc == nil {
		return schema.FailedResult(schema.NewError(schema.ErrCodeValidation, "step context is nil"), nil)
	}
	ctx = logging.WithStep(ctx, sc.RunID, sc.StepID, string(sc.Intent))

	h := r.Get(sc.Intent)
	if h == nil {
		r.logger.WarnContext(ctx, "no handler registered")
		return schema.FailedResult(
			schema.NewErrorf(schema.ErrCodeHandlerNotFound, "No handler registered for intent: %s", sc.Intent).
				WithStep(sc.StepID),
			map[string]any{"intent": string(sc.Intent)})
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "handler panicked", "panic", p)
			res = schema.FailedResult(
				schema.NewErrorf(schema.ErrCodeHandlerPanic, "handler panicked: %v", p).WithStep(sc.StepID),
				map[string]any{"intent": string(sc.Intent)})
		}
	}()

	out, err := h.Execute(ctx, sc)
	if err != nil {
		r.logger.WarnContext(ctx, "handler failed", "error", err)
		return schema.FailedResult(err, map[string]any{"intent": string(sc.Intent)})
	}
	if out == nil {
		return schema.FailedResult(
			schema.NewError(schema.ErrCodeExecution, fmt.Sprintf("handler for %s returned no result", sc.Intent)),
			map[string]any{"intent": string(sc.Intent)})
	}
	return out
}
