package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func newRecorder(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	return recorder, provider
}

func TestSpan_RecordsAttributesEventsAndError(t *testing.T) {
	recorder, provider := newRecorder(t)

	_, step := StartSpan(context.Background(), provider.Tracer("test"), zap.NewNop(), "Run",
		attribute.String("job", "billing"))
	step.SetAttributes(attribute.String("run_id", "r-1"))
	step.AddEvent("attempt", attribute.Int("attempt", 2))
	step.End(errors.New("export dialog missing"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "Run", span.Name())
	assert.Contains(t, span.Attributes(), attribute.String("job", "billing"))
	assert.Contains(t, span.Attributes(), attribute.String("run_id", "r-1"))
	require.NotEmpty(t, span.Events())
	assert.Equal(t, "attempt", span.Events()[0].Name)
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, "export dialog missing", span.Status().Description)
}

func TestSpan_EndWithoutErrorIsOk(t *testing.T) {
	recorder, provider := newRecorder(t)

	_, step := StartSpan(context.Background(), provider.Tracer("test"), zap.NewNop(), "Login")
	step.End(nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
}
