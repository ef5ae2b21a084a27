package operation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tombee/remediator/internal/operation"

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

func startPipelineSpan(ctx context.Context, tracer trace.Tracer, p Params) (context.Context, trace.Span) {
	return tracer.Start(ctx, fmt.Sprintf("operation: %s", p.FullName()),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.actor", p.Actor),
			attribute.String("operation.name", p.Operation),
			attribute.String("operation.request_id", p.RequestID.String()),
			attribute.Int("operation.retry", p.GetRetry()),
		),
	)
}

func recordAttemptEvent(span trace.Span, attempt int, o *Outcome) {
	span.AddEvent("attempt", trace.WithAttributes(
		attribute.Int("attempt", attempt),
		attribute.String("sub_request_id", o.SubRequestID),
		attribute.String("result", o.Result.String()),
	))
}

func endPipelineSpan(span trace.Span, attempts int, o *Outcome) {
	span.SetAttributes(
		attribute.Int("operation.attempts", attempts),
		attribute.String("operation.result", o.Result.String()),
	)
	if o.IsSuccess() {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, o.Message)
	}
	span.End()
}
