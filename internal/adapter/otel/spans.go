package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "repo-oracle"

// StartToolSpan starts a span for an MCP tool call.
func StartToolSpan(ctx context.Context, requestID, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tool."+tool,
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("tool.name", tool),
		),
	)
}

// StartUpstreamSpan starts a span for a dispatcher call. cacheKey identifies
// the logical request.
func StartUpstreamSpan(ctx context.Context, endpoint, cacheKey string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "github.get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("github.endpoint", endpoint),
			attribute.String("cache.key", cacheKey),
		),
	)
}

// MarkCache annotates span with the cache outcome.
func MarkCache(span trace.Span, hit bool) {
	span.SetAttributes(attribute.Bool("cache.hit", hit))
}

// MarkError records err on span and tags it with the error kind.
func MarkError(span trace.Span, err error, kind string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, kind)
	span.SetAttributes(attribute.String("error.kind", kind))
}
