package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/job"
	"github.com/badbayesian/ragonometrics-sub003/lineage"
	mw "github.com/badbayesian/ragonometrics-sub003/middleware"
)

func newTestJob() *job.Job {
	return &job.Job{
		ID:       id.NewJobID(),
		Name:     "execute-run",
		Queue:    "default",
		Attempts: 2,
		Lineage: lineage.Labels{
			Workstream: "minimum-wage",
			VariantArm: "top-k-16",
		},
	}
}

// traceOneJob runs a single job through the tracing middleware with an
// in-memory span recorder and returns the one ended span.
func traceOneJob(t *testing.T, handler mw.Handler) sdktrace.ReadOnlySpan {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	m := mw.TracingWithTracer(tp.Tracer("test"))

	_ = m(context.Background(), newTestJob(), handler)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	return spans[0]
}

func TestTracingSpanNameAndAttributes(t *testing.T) {
	span := traceOneJob(t, func(_ context.Context) error { return nil })

	if span.Name() != "ragonometrics.job.execute" {
		t.Errorf("span name = %q, want %q", span.Name(), "ragonometrics.job.execute")
	}

	got := make(map[string]any)
	for _, a := range span.Attributes() {
		switch a.Value.Type() {
		case attribute.STRING:
			got[string(a.Key)] = a.Value.AsString()
		case attribute.INT64:
			got[string(a.Key)] = a.Value.AsInt64()
		}
	}
	want := map[string]any{
		"ragonometrics.job.name":    "execute-run",
		"ragonometrics.queue":       "default",
		"ragonometrics.attempts":    int64(2),
		"ragonometrics.workstream":  "minimum-wage",
		"ragonometrics.variant_arm": "top-k-16",
	}
	for key, v := range want {
		if got[key] != v {
			t.Errorf("attribute %q = %v, want %v", key, got[key], v)
		}
	}
	// The job ID attribute differs per job; just check presence.
	if _, ok := got["ragonometrics.job.id"]; !ok {
		t.Error("missing ragonometrics.job.id attribute")
	}
}

func TestTracingSuccessStatus(t *testing.T) {
	span := traceOneJob(t, func(_ context.Context) error { return nil })
	if span.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", span.Status().Code)
	}
}

func TestTracingErrorStatusAndEvent(t *testing.T) {
	handlerErr := errors.New("handler failed")
	span := traceOneJob(t, func(_ context.Context) error { return handlerErr })

	if span.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status().Code)
	}
	if span.Status().Description != "handler failed" {
		t.Errorf("status description = %q, want %q", span.Status().Description, "handler failed")
	}

	recorded := false
	for _, ev := range span.Events() {
		if ev.Name == "exception" {
			recorded = true
		}
	}
	if !recorded {
		t.Error("error was not recorded as an exception event")
	}
}

func TestTracingHandlerSeesSpanContext(t *testing.T) {
	var inHandler trace.SpanContext
	span := traceOneJob(t, func(ctx context.Context) error {
		inHandler = trace.SpanFromContext(ctx).SpanContext()
		return nil
	})

	if !inHandler.IsValid() {
		t.Fatal("handler did not receive a valid span context")
	}
	if inHandler.TraceID() != span.SpanContext().TraceID() {
		t.Error("handler trace ID does not match the middleware span")
	}
}

func TestTracingWithoutProviderIsInert(t *testing.T) {
	m := mw.Tracing()

	called := false
	err := m(context.Background(), newTestJob(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not invoked")
	}
}
