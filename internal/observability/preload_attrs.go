package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// VertexLoad is what one finished vertex load reports to spans.
type VertexLoad struct {
	Entity     string
	Groups     int
	Keys       int
	Rows       int
	Associated int
	Fetched    bool
}

// VertexSpanAttributes builds canonical span attributes for a vertex load.
func VertexSpanAttributes(load VertexLoad) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 6)
	if load.Entity != "" {
		attrs = append(attrs, attribute.String("preload.entity", load.Entity))
	}
	attrs = append(attrs,
		attribute.Int("preload.groups", load.Groups),
		attribute.Int("preload.keys", load.Keys),
		attribute.Int("preload.rows", load.Rows),
		attribute.Int("preload.associated", load.Associated),
		attribute.Bool("preload.fetched", load.Fetched),
	)
	return attrs
}

// PassLogFields builds canonical structured log fields for a preload pass,
// including the trace id when ctx carries a valid span.
func PassLogFields(ctx context.Context, passID string) []any {
	fields := make([]any, 0, 2)
	if passID != "" {
		fields = append(fields, slog.String("pass_id", passID))
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		fields = append(fields, slog.String("trace_id", spanCtx.TraceID().String()))
	}
	return fields
}
