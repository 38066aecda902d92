package handlers

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgentsPilot/neuronforge-sub017/internal/provider"
	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

type stubHandler struct {
	intent schema.Intent
	res    *schema.HandlerResult
	err    error
	panic  any
}

func (s *stubHandler) Intent() schema.Intent { return s.intent }

func (s *stubHandler) Execute(context.Context, *StepContext) (*schema.HandlerResult, error) {
	if s.panic != nil {
		panic(s.panic)
	}
	return s.res, s.err
}

func TestConstructorsCoverEveryIntent(t *testing.T) {
	for _, intent := range schema.AllIntents() {
		_, ok := constructors[intent]
		assert.True(t, ok, "no constructor for %s", intent)
	}
	assert.Len(t, constructors, len(schema.AllIntents()))
}

func TestNewDefaultRegistry(t *testing.T) {
	r, err := NewDefaultRegistry(testDeps(t, provider.NewStatic("ok")))
	require.NoError(t, err)

	assert.Len(t, r.List(), len(schema.AllIntents()))
	for _, intent := range schema.AllIntents() {
		h := r.Get(intent)
		require.NotNil(t, h, intent)
		assert.Equal(t, intent, h.Intent())
	}
}

func TestNewDefaultRegistry_RequiresProvider(t *testing.T) {
	_, err := NewDefaultRegistry(&Deps{})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))

	_, err = NewDefaultRegistry(nil)
	require.Error(t, err)
}

func TestRegistry_ListIsSorted(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&stubHandler{intent: schema.IntentTransform}))
	require.NoError(t, r.Register(&stubHandler{intent: schema.IntentAggregate}))
	require.NoError(t, r.Register(&stubHandler{intent: schema.IntentExtract}))

	assert.Equal(t, []schema.Intent{schema.IntentAggregate, schema.IntentExtract, schema.IntentTransform}, r.List())
}

func TestRegistry_RegisterRejects(t *testing.T) {
	r := NewRegistry(nil)
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&stubHandler{intent: "translate"}))
	assert.Empty(t, r.List())
}

func TestRegistry_ReplaceWarns(t *testing.T) {
	var buf bytes.Buffer
	r := NewRegistry(slog.New(slog.NewTextHandler(&buf, nil)))

	first := &stubHandler{intent: schema.IntentSend}
	second := &stubHandler{intent: schema.IntentSend}
	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))

	assert.Same(t, second, r.Get(schema.IntentSend))
	assert.Contains(t, buf.String(), "handler replaced")
	assert.Contains(t, buf.String(), "intent=send")
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&stubHandler{intent: schema.IntentFilter}))

	assert.True(t, r.Unregister(schema.IntentFilter))
	assert.False(t, r.Unregister(schema.IntentFilter))
	assert.Nil(t, r.Get(schema.IntentFilter))
}

func TestRegistry_ExecuteMissingHandler(t *testing.T) {
	r := NewRegistry(nil)
	res := r.Execute(context.Background(), testStep(schema.IntentSummarize, nil))
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, schema.ErrCodeHandlerNotFound, res.ErrorCode)
	assert.Equal(t, "No handler registered for intent: summarize", res.Error)
}

func TestRegistry_ExecuteRecoversPanic(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&stubHandler{intent: schema.IntentEnrich, panic: "nil map write"}))

	res := r.Execute(context.Background(), testStep(schema.IntentEnrich, nil))
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, schema.ErrCodeHandlerPanic, res.ErrorCode)
	assert.Equal(t, "handler panicked: nil map write", res.Error)
}

func TestRegistry_ExecuteConvertsErrors(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&stubHandler{intent: schema.IntentEnrich, err: errors.New("boom")}))
	require.NoError(t, r.Register(&stubHandler{intent: schema.IntentFilter}))

	res := r.Execute(context.Background(), testStep(schema.IntentEnrich, nil))
	assert.False(t, res.Success)
	assert.Equal(t, schema.ErrCodeExecution, res.ErrorCode)
	assert.Equal(t, "boom", res.Error)

	res = r.Execute(context.Background(), testStep(schema.IntentFilter, nil))
	assert.False(t, res.Success)
	assert.Equal(t, schema.ErrCodeExecution, res.ErrorCode)

	res = r.Execute(context.Background(), nil)
	assert.Equal(t, schema.ErrCodeValidation, res.ErrorCode)
}

func TestRegistry_ExecuteDispatches(t *testing.T) {
	static := provider.NewStatic(`{"result": true, "reasoning": "yes", "confidence": 1}`)
	r, err := NewDefaultRegistry(testDeps(t, static))
	require.NoError(t, err)

	res := r.Execute(context.Background(), testStep(schema.IntentConditional, map[string]any{
		"instruction": "Is the sky blue?",
	}))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "then", res.Output.(map[string]any)["branch"])
	assert.Equal(t, 1, static.CallCount())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r, err := NewDefaultRegistry(testDeps(t, provider.NewStatic("Summary.")))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res := r.Execute(context.Background(), testStep(schema.IntentSummarize, map[string]any{"prompt": "Summarize", "data": "abc"}))
			assert.True(t, res.Success, res.Error)
		}()
		go func() {
			defer wg.Done()
			_ = r.List()
		}()
	}
	wg.Wait()
}
