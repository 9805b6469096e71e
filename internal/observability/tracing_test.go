package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(1).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(2.5).Description())
	assert.Contains(t, samplerFor(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestInitTracing(t *testing.T) {
	t.Run("disabled is a no-op", func(t *testing.T) {
		shutdown, err := InitTracing(TracingConfig{ServiceName: "clubhub-test"})
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("unknown exporter", func(t *testing.T) {
		_, err := InitTracing(TracingConfig{ServiceName: "clubhub-test", Enabled: true, Exporter: "zipkin"})
		assert.ErrorContains(t, err, "zipkin")
	})

	t.Run("none exporter still traces", func(t *testing.T) {
		shutdown, err := InitTracing(TracingConfig{ServiceName: "clubhub-test", Enabled: true, Exporter: "none", SamplerRatio: 1})
		require.NoError(t, err)
		defer func() { _ = shutdown(context.Background()) }()

		ctx, span := StartServiceSpan(context.Background(), "membership", "register")
		assert.NotEmpty(t, TraceID(ctx))
		span.End()
	})
}

func TestServiceSpanRecordsErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := Tracer
	Tracer = tp.Tracer("clubhub-test")
	t.Cleanup(func() { Tracer = prev })

	_, span := StartServiceSpan(context.Background(), "applications", "review")
	span.SetError(nil)
	span.SetError(errors.New("form locked"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "applications.review", ended[0].Name())
	assert.Equal(t, "form locked", ended[0].Status().Description)
	assert.Len(t, ended[0].Events(), 1, "one recorded error")

	var nilSpan *Span
	nilSpan.SetError(errors.New("ignored"))
	nilSpan.End()
	assert.Empty(t, TraceID(context.Background()))
}
