package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestProviders() (*tracetest.SpanRecorder, *sdktrace.TracerProvider, *sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return sr, tp, reader, mp
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)

			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not recorded", name)
	return 0
}

func TestInstrument_RecordsSpanAndTokens(t *testing.T) {
	ctx := context.Background()
	sr, tp, reader, mp := newTestProviders()

	client := Instrument(NewMockLLM(), "mock", WithTracerProvider(tp), WithMeterProvider(mp))

	c, err := client.Complete(ctx, "s1", "sys", "hello")
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "llm.Complete", spans[0].Name())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Equal(t, int64(c.PromptTokens), sumOf(t, rm, "llm.usage.prompt_tokens"))
	assert.Equal(t, int64(c.CompletionTokens), sumOf(t, rm, "llm.usage.completion_tokens"))
}

func TestInstrument_MarksFailedSpans(t *testing.T) {
	sr, tp, _, mp := newTestProviders()
	failing := &flakyLLM{errs: []error{errors.New("boom")}}

	client := Instrument(failing, "flaky", WithTracerProvider(tp), WithMeterProvider(mp))

	_, err := client.Summarize(context.Background(), "s1", "text")
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "llm.Summarize", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
