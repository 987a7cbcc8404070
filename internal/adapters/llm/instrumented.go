package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/PabloGalante/farum-chat/internal/domain"
	"github.com/PabloGalante/farum-chat/internal/observability"
)

const instrumentationName = "github.com/PabloGalante/farum-chat/internal/adapters/llm"

type instrumentConfig struct {
	tp trace.TracerProvider
	mp metric.MeterProvider
}

type InstrumentOption func(*instrumentConfig)

func WithTracerProvider(tp trace.TracerProvider) InstrumentOption {
	return func(c *instrumentConfig) { c.tp = tp }
}

func WithMeterProvider(mp metric.MeterProvider) InstrumentOption {
	return func(c *instrumentConfig) { c.mp = mp }
}

// instrumentedClient records a span, token counters and call latency for
// every call of the wrapped client.
type instrumentedClient struct {
	next     domain.CompletionClient
	provider string

	tracer           trace.Tracer
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	duration         metric.Float64Histogram
}

// Instrument wraps client with OpenTelemetry tracing and metrics. The global
// providers are used unless options say otherwise.
func Instrument(client domain.CompletionClient, provider string, opts ...InstrumentOption) domain.CompletionClient {
	cfg := instrumentConfig{tp: otel.GetTracerProvider(), mp: otel.GetMeterProvider()}
	for _, opt := range opts {
		opt(&cfg)
	}

	meter := cfg.mp.Meter(instrumentationName)
	log := observability.Logger()

	c := &instrumentedClient{
		next:     client,
		provider: provider,
		tracer:   cfg.tp.Tracer(instrumentationName),
	}

	var err error
	if c.promptTokens, err = meter.Int64Counter("llm.usage.prompt_tokens",
		metric.WithDescription("Prompt tokens reported by the LLM provider")); err != nil {
		log.Warn("failed to create counter", "name", "llm.usage.prompt_tokens", "error", err)
	}
	if c.completionTokens, err = meter.Int64Counter("llm.usage.completion_tokens",
		metric.WithDescription("Completion tokens reported by the LLM provider")); err != nil {
		log.Warn("failed to create counter", "name", "llm.usage.completion_tokens", "error", err)
	}
	if c.duration, err = meter.Float64Histogram("llm.request.duration",
		metric.WithDescription("LLM request duration in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		log.Warn("failed to create histogram", "name", "llm.request.duration", "error", err)
	}

	return c
}

func (c *instrumentedClient) Complete(ctx context.Context, sessionID domain.SessionID, systemPrompt, conversation string) (domain.Completion, error) {
	ctx, span := c.start(ctx, "llm.Complete", sessionID)
	defer span.End()

	start := time.Now()
	completion, err := c.next.Complete(ctx, sessionID, systemPrompt, conversation)
	c.record(ctx, "complete", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return completion, err
	}

	attrs := metric.WithAttributes(attribute.String("llm.provider", c.provider))
	if c.promptTokens != nil {
		c.promptTokens.Add(ctx, int64(completion.PromptTokens), attrs)
	}
	if c.completionTokens != nil {
		c.completionTokens.Add(ctx, int64(completion.CompletionTokens), attrs)
	}
	span.SetAttributes(
		attribute.Int("llm.usage.prompt_tokens", completion.PromptTokens),
		attribute.Int("llm.usage.completion_tokens", completion.CompletionTokens),
	)
	return completion, nil
}

func (c *instrumentedClient) Summarize(ctx context.Context, sessionID domain.SessionID, text string) (string, error) {
	ctx, span := c.start(ctx, "llm.Summarize", sessionID)
	defer span.End()

	start := time.Now()
	label, err := c.next.Summarize(ctx, sessionID, text)
	c.record(ctx, "summarize", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return label, err
}

func (c *instrumentedClient) start(ctx context.Context, name string, sessionID domain.SessionID) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", c.provider),
			attribute.String("session.id", string(sessionID)),
		))
}

func (c *instrumentedClient) record(ctx context.Context, op string, start time.Time, err error) {
	if c.duration == nil {
		return
	}
	c.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(
			attribute.String("llm.provider", c.provider),
			attribute.String("llm.operation", op),
			attribute.Bool("error", err != nil),
		))
}
