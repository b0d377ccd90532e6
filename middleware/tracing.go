package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/badbayesian/ragonometrics-sub003/job"
)

// tracerName is the instrumentation scope name for ragonometrics tracing.
const tracerName = "github.com/badbayesian/ragonometrics-sub003"

// Tracing returns middleware that wraps job execution in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used
// and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: ragonometrics.job.id, ragonometrics.job.name,
// ragonometrics.queue, ragonometrics.attempts, ragonometrics.workstream,
// ragonometrics.variant_arm. On error, the span status is set to
// codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "ragonometrics.job.execute",
			trace.WithAttributes(
				attribute.String("ragonometrics.job.id", j.ID.String()),
				attribute.String("ragonometrics.job.name", j.Name),
				attribute.String("ragonometrics.queue", j.Queue),
				attribute.Int("ragonometrics.attempts", j.Attempts),
				attribute.String("ragonometrics.workstream", j.Lineage.Workstream),
				attribute.String("ragonometrics.variant_arm", j.Lineage.VariantArm),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
