package operation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracing_PipelineSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	params := testParams()
	params.Retry = IntPtr(1)
	op := New(params, &scripted{results: []Result{Failure, Success}}, testOptions(WithTracer(tp.Tracer("test")))...)

	_, err := await(t, op.Start(context.Background()))
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]

	assert.Equal(t, "operation: vfc.Restart", span.Name)
	assert.Equal(t, codes.Ok, span.Status.Code)
	require.Len(t, span.Events, 2)
	assert.Equal(t, "attempt", span.Events[0].Name)
}

func TestTracing_FailureStatus(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	op := New(testParams(), &scripted{results: []Result{Failure}}, testOptions(WithTracer(tp.Tracer("test")))...)
	_, err := await(t, op.Start(context.Background()))
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "failed", spans[0].Status.Description)
}
