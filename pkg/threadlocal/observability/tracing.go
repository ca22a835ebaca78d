package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the threadlocal tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("threadlocal")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartGenerateSpan starts a span covering a lazy generator invocation.
	StartGenerateSpan(ctx context.Context, registry string) (context.Context, trace.Span)

	// StartCloseSpan starts a span covering a registry close drain.
	StartCloseSpan(ctx context.Context, registry string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartGenerateSpan starts a span for a generator invocation.
func (m *otelSpanManager) StartGenerateSpan(ctx context.Context, registry string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "threadlocal.generate",
		trace.WithAttributes(
			attribute.String("registry", registry),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartCloseSpan starts a span for a close drain.
func (m *otelSpanManager) StartCloseSpan(ctx context.Context, registry string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "threadlocal.close",
		trace.WithAttributes(
			attribute.String("registry", registry),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
