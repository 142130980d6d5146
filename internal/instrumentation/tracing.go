package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer every gistflow span comes from.
const TracerName = "github.com/teemow/gistflow"

// Span attribute keys.
const (
	SpanAttrRunID       = "gistflow.run_id"
	SpanAttrTrigger     = "gistflow.trigger"
	SpanAttrSourceID    = "gistflow.source_id"
	SpanAttrStage       = "gistflow.stage"
	SpanAttrDestination = "gistflow.destination"
	SpanAttrScore       = "gistflow.score"
	SpanAttrDegraded    = "gistflow.degraded"
	SpanAttrTool        = "mcp.tool"
	SpanAttrService     = "google.service"
	SpanAttrOperation   = "google.operation"
)

// SourceAttr identifies the source message a span works on.
func SourceAttr(sourceID string) attribute.KeyValue {
	return attribute.String(SpanAttrSourceID, sourceID)
}

// DestinationAttr identifies the publish destination of a span.
func DestinationAttr(kind string) attribute.KeyValue {
	return attribute.String(SpanAttrDestination, kind)
}

// GistAttrs describes an extraction result.
func GistAttrs(score int, degraded bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(SpanAttrScore, score),
		attribute.Bool(SpanAttrDegraded, degraded),
	}
}

// Spans always come from the global provider, which NewProvider replaces.
// Before that, or when instrumentation is disabled, they are no-ops.
func start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
}

// StartRunSpan opens the root span of one pipeline run.
func StartRunSpan(ctx context.Context, runID, trigger string) (context.Context, trace.Span) {
	return start(ctx, "pipeline.run", trace.SpanKindInternal,
		attribute.String(SpanAttrRunID, runID),
		attribute.String(SpanAttrTrigger, trigger))
}

// StartItemSpan opens the span of one source message within a run.
func StartItemSpan(ctx context.Context, sourceID string) (context.Context, trace.Span) {
	return start(ctx, "pipeline.item", trace.SpanKindInternal, SourceAttr(sourceID))
}

// StartStageSpan opens "pipeline.stage.<stage>" under the current item.
func StartStageSpan(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return start(ctx, "pipeline.stage."+stage, trace.SpanKindInternal,
		append([]attribute.KeyValue{attribute.String(SpanAttrStage, stage)}, attrs...)...)
}

// StartToolSpan opens a server span for one MCP tool call.
func StartToolSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	return start(ctx, "tool."+tool, trace.SpanKindServer, attribute.String(SpanAttrTool, tool))
}

// StartGoogleAPISpan opens "google.<service>.<operation>".
func StartGoogleAPISpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return start(ctx, "google."+service+"."+operation, trace.SpanKindClient,
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation))
}

// StartClientSpan opens a client span for the LLM backend or Notion.
func StartClientSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return start(ctx, name, trace.SpanKindClient, attrs...)
}

// EndSpan records err, if any, sets the status and ends span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
