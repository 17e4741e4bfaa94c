package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the service tracer.
const tracerName = "github.com/MrWong99/rhymeslikedimes"

// Span attribute keys shared by the analyzer and the source client.
const (
	AttrText         = attribute.Key("rhyme.text")
	AttrRelation     = attribute.Key("rhyme.relation")
	AttrFragments    = attribute.Key("rhyme.fragments")
	AttrEmitted      = attribute.Key("rhyme.fragments.emitted")
	AttrSourceStatus = attribute.Key("rhyme.source.status")
	AttrCandidates   = attribute.Key("rhyme.source.candidates")
)

// Tracer returns the service [trace.Tracer] from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartLookupSpan starts the client span of one rhyme source lookup.
func StartLookupSpan(ctx context.Context, text, relation string) (context.Context, trace.Span) {
	return StartSpan(ctx, "source.lookup",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrText.String(text), AttrRelation.String(relation)),
	)
}

// StartAnalysisSpan starts the span of an analyzer operation ("analyze" or
// "suggest") over text.
func StartAnalysisSpan(ctx context.Context, op, text string) (context.Context, trace.Span) {
	return StartSpan(ctx, "rhyme."+op, trace.WithAttributes(AttrText.String(text)))
}

// CorrelationID returns the trace ID of the active span in ctx, or the empty
// string when there is none. HTTP responses carry it as X-Correlation-ID.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger tagged with component and, when ctx
// carries an active span, its trace_id and span_id.
func Logger(ctx context.Context, component string) *slog.Logger {
	l := slog.Default().With(slog.String("component", component))
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
