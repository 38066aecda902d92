package provider

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Trace returns a Middleware wrapping every call in a client span named
// "model.invoke".
func Trace(tracer trace.Tracer) Middleware {
	return func(next Provider) Provider {
		return Func(func(ctx context.Context, req *Request) (*Response, error) {
			ctx, span := tracer.Start(ctx, "model.invoke",
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(requestAttrs(req)...),
			)
			defer span.End()

			resp, err := next.Invoke(ctx, req)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "model invoke failed")
				return resp, err
			}
			span.SetAttributes(
				attribute.Int("model.input_tokens", resp.InputTokens),
				attribute.Int("model.output_tokens", resp.OutputTokens),
				attribute.String("model.stop_reason", resp.StopReason),
			)
			return resp, nil
		})
	}
}

func requestAttrs(req *Request) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("model.provider", req.Provider),
		attribute.String("model.id", req.Model),
		attribute.Int("model.max_tokens", req.MaxTokens),
		attribute.Bool("model.vision", req.HasImages()),
	}
}

// Metrics records model call counts, token usage, cost and latency.
type Metrics struct {
	calls    metric.Int64Counter
	tokens   metric.Int64Counter
	cost     metric.Float64Counter
	duration metric.Float64Histogram
	now      func() time.Time
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	calls, err := meter.Int64Counter("stepengine.model.calls",
		metric.WithDescription("Model invocations by outcome"))
	if err != nil {
		return nil, err
	}
	tokens, err := meter.Int64Counter("stepengine.model.tokens",
		metric.WithDescription("Tokens reported by the backend"), metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}
	cost, err := meter.Float64Counter("stepengine.model.cost",
		metric.WithDescription("Backend cost of model calls"), metric.WithUnit("USD"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("stepengine.model.duration",
		metric.WithDescription("Model call latency"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{calls: calls, tokens: tokens, cost: cost, duration: duration, now: time.Now}, nil
}

// Middleware returns a Middleware recording every call.
func (m *Metrics) Middleware() Middleware {
	return func(next Provider) Provider {
		return Func(func(ctx context.Context, req *Request) (*Response, error) {
			start := m.now()
			resp, err := next.Invoke(ctx, req)

			base := []attribute.KeyValue{
				attribute.String("provider", req.Provider),
				attribute.String("model", req.Model),
			}
			m.duration.Record(ctx, m.now().Sub(start).Seconds(), metric.WithAttributes(base...))
			m.calls.Add(ctx, 1, metric.WithAttributes(append(base, attribute.String("outcome", outcome(err)))...))
			if err != nil {
				return resp, err
			}

			m.tokens.Add(ctx, int64(resp.InputTokens), metric.WithAttributes(append(base, attribute.String("direction", "input"))...))
			m.tokens.Add(ctx, int64(resp.OutputTokens), metric.WithAttributes(append(base, attribute.String("direction", "output"))...))
			if resp.Cost > 0 {
				m.cost.Add(ctx, resp.Cost, metric.WithAttributes(base...))
			}
			return resp, nil
		})
	}
}

// outcome labels a call result: "ok", the provider error kind, or "error".
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if pe, ok := AsProviderError(err); ok {
		return string(pe.Kind())
	}
	return "error"
}
