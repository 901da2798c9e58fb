package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys
const (
	AttrServiceName    = attribute.Key("service.name")
	AttrFilterSize     = attribute.Key("condfilter.source.size")
	AttrFilterEntity   = attribute.Key("condfilter.entity")
	AttrClauseCount    = attribute.Key("condfilter.clauses")
	AttrSkippedCount   = attribute.Key("condfilter.skipped")
	AttrFilterID       = attribute.Key("condfilter.saved.id")
	AttrComponentID    = attribute.Key("condfilter.saved.component")
	AttrCacheHit       = attribute.Key("condfilter.cache.hit")
	AttrDBStatement    = attribute.Key("db.statement")
	AttrDBRowsAffected = attribute.Key("db.rows_affected")
)

// Tracer starts spans for filter operations.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

func newTracer(t trace.Tracer, serviceName string) *Tracer {
	return &Tracer{tracer: t, serviceName: serviceName}
}

func (t *Tracer) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, AttrServiceName.String(t.serviceName))
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartParse starts a span for parsing a filter definition of the given size.
func (t *Tracer) StartParse(ctx context.Context, size int) (context.Context, trace.Span) {
	return t.start(ctx, "condfilter.parse", AttrFilterSize.Int(size))
}

// StartRender starts a span for rendering a condition tree against an entity.
func (t *Tracer) StartRender(ctx context.Context, entity string) (context.Context, trace.Span) {
	return t.start(ctx, "condfilter.render", AttrFilterEntity.String(entity))
}

// StartQuery starts a span for running a filtered query.
func (t *Tracer) StartQuery(ctx context.Context, entity string) (context.Context, trace.Span) {
	return t.start(ctx, "condfilter.query", AttrFilterEntity.String(entity))
}

// StartStore starts a span for a saved filter operation.
func (t *Tracer) StartStore(ctx context.Context, operation string) (context.Context, trace.Span) {
	return t.start(ctx, "condfilter.store."+operation)
}

// RecordError marks span as failed.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
