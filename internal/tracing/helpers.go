package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys for audit events.
const (
	AttrCollection = attribute.Key("audit.collection")
	AttrOperation  = attribute.Key("audit.operation")
	AttrDocID      = attribute.Key("audit.doc_id")
	AttrField      = attribute.Key("audit.field")
)

// EventClassificationFallback is added to a dispatch span when no configured
// field changed and the record carries both whole snapshots.
const EventClassificationFallback = "classification fallback"

// DBOperation names the statement kind on a database span.
type DBOperation string

const (
	// DBOperationQuery reads the stream cursor.
	DBOperationQuery DBOperation = "query"
	// DBOperationInsert appends an audit record row.
	DBOperationInsert DBOperation = "insert"
	// DBOperationUpdate advances the stream cursor.
	DBOperationUpdate DBOperation = "update"
)

// StartDBSpan starts a client span named "<operation> <table>" for a
// PostgreSQL statement. The returned func ends it, marking err on the span.
//
//	ctx, endSpan := tracing.StartDBSpan(ctx, "audit_records", tracing.DBOperationInsert)
//	defer func() { endSpan(err) }()
func StartDBSpan(ctx context.Context, table string, operation DBOperation) (context.Context, func(error)) {
	spanName := string(operation)
	if table != "" {
		spanName += " " + table
	}

	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", string(operation)),
	}
	if table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", table))
	}

	ctx, span := otel.Tracer("docaudit/db").Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, endFunc(span)
}

// StartDispatchSpan starts the span for one change event, named
// "dispatch <collection>.<operation>". Storage events have no document ID.
func StartDispatchSpan(ctx context.Context, collection, operation, docID string) (context.Context, func(error)) {
	attrs := []attribute.KeyValue{
		AttrCollection.String(collection),
		AttrOperation.String(operation),
	}
	if docID != "" {
		attrs = append(attrs, AttrDocID.String(docID))
	}

	ctx, span := otel.Tracer("docaudit/dispatch").Start(ctx,
		"dispatch "+collection+"."+operation,
		trace.WithAttributes(attrs...),
	)
	return ctx, endFunc(span)
}

// SetField records the classified field on the current span.
func SetField(ctx context.Context, field string) {
	trace.SpanFromContext(ctx).SetAttributes(AttrField.String(field))
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

func endFunc(span trace.Span) func(error) {
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
