package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

type recordingSpan struct {
	tracenoop.Span
	name   string
	kind   trace.SpanKind
	attrs  []attribute.KeyValue
	status codes.Code
	errs   []error
	ended  bool
}

func (s *recordingSpan) SetAttributes(kv ...attribute.KeyValue) { s.attrs = append(s.attrs, kv...) }
func (s *recordingSpan) SetStatus(c codes.Code, _ string)       { s.status = c }
func (s *recordingSpan) RecordError(err error, _ ...trace.EventOption) {
	s.errs = append(s.errs, err)
}
func (s *recordingSpan) End(...trace.SpanEndOption) { s.ended = true }

func (s *recordingSpan) attr(key string) attribute.Value {
	for _, kv := range s.attrs {
		if string(kv.Key) == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

type recordingTracer struct {
	tracenoop.Tracer
	spans []*recordingSpan
}

func (r *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	span := &recordingSpan{name: name, kind: cfg.SpanKind(), attrs: cfg.Attributes()}
	r.spans = append(r.spans, span)
	return trace.ContextWithSpan(ctx, span), span
}

func TestTrace_Success(t *testing.T) {
	tracer := &recordingTracer{}
	p := Chain(Func(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{Text: "ok", InputTokens: 12, OutputTokens: 3, StopReason: "end_turn"}, nil
	}), Trace(tracer))

	_, err := p.Invoke(context.Background(), userRequest(AnthropicID, "claude-haiku-4", "hi"))
	require.NoError(t, err)

	require.Len(t, tracer.spans, 1)
	span := tracer.spans[0]
	assert.Equal(t, "model.invoke", span.name)
	assert.Equal(t, trace.SpanKindClient, span.kind)
	assert.True(t, span.ended)
	assert.Equal(t, "anthropic", span.attr("model.provider").AsString())
	assert.Equal(t, "claude-haiku-4", span.attr("model.id").AsString())
	assert.Equal(t, int64(12), span.attr("model.input_tokens").AsInt64())
	assert.Equal(t, codes.Unset, span.status)
}

func TestTrace_Failure(t *testing.T) {
	tracer := &recordingTracer{}
	cause := NewProviderError("anthropic", "messages.new", 503, "", "overloaded", nil)
	p := Chain(NewFailing(cause), Trace(tracer))

	_, err := p.Invoke(context.Background(), userRequest(AnthropicID, "m", "hi"))
	require.Error(t, err)

	span := tracer.spans[0]
	assert.Equal(t, codes.Error, span.status)
	require.Len(t, span.errs, 1)
	assert.ErrorIs(t, span.errs[0], cause)
}

type recordingCounter struct {
	metricnoop.Int64Counter
	total int64
	sets  []attribute.Set
}

func (c *recordingCounter) Add(_ context.Context, incr int64, opts ...metric.AddOption) {
	c.total += incr
	c.sets = append(c.sets, metric.NewAddConfig(opts).Attributes())
}

type recordingMeter struct {
	metricnoop.Meter
	counters map[string]*recordingCounter
}

func (m *recordingMeter) Int64Counter(name string, _ ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	c := &recordingCounter{}
	m.counters[name] = c
	return c, nil
}

func TestMetrics_Middleware(t *testing.T) {
	meter := &recordingMeter{counters: map[string]*recordingCounter{}}
	m, err := NewMetrics(meter)
	require.NoError(t, err)

	calls := 0
	p := Chain(Func(func(ctx context.Context, req *Request) (*Response, error) {
		calls++
		if calls == 2 {
			return nil, NewProviderError("anthropic", "messages.new", 429, "", "slow down", nil)
		}
		return &Response{Text: "ok", InputTokens: 100, OutputTokens: 20, Cost: 0.01}, nil
	}), m.Middleware())

	req := userRequest(AnthropicID, "claude-haiku-4", "hi")
	_, err = p.Invoke(context.Background(), req)
	require.NoError(t, err)
	_, err = p.Invoke(context.Background(), req)
	require.Error(t, err)

	callCounter := meter.counters["stepengine.model.calls"]
	require.NotNil(t, callCounter)
	assert.Equal(t, int64(2), callCounter.total)
	outcomes := make([]string, 0, len(callCounter.sets))
	for _, set := range callCounter.sets {
		v, ok := set.Value("outcome")
		require.True(t, ok)
		outcomes = append(outcomes, v.AsString())
	}
	assert.Equal(t, []string{"ok", "rate_limited"}, outcomes)

	assert.Equal(t, int64(120), meter.counters["stepengine.model.tokens"].total)
}

func TestMetrics_NoopMeter(t *testing.T) {
	m, err := NewMetrics(metricnoop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	p := Chain(NewStatic("ok"), m.Middleware())
	resp, err := p.Invoke(context.Background(), userRequest(AnthropicID, "m", "hi"))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "auth", outcome(NewProviderError("p", "op", 401, "", "no", nil)))
	assert.Equal(t, "error", outcome(errors.New("plain")))
}
