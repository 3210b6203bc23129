package apm

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans for command-level operations.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span)
}

// Span is the subset of trace.Span used around whole operations.
type Span interface {
	SetAttributes(attrs ...attribute.KeyValue)
	AddEvent(name string, attrs ...attribute.KeyValue)
	NoticeError(err error)
	// Finish records err, if any, and ends the span.
	Finish(err error)
	SpanContext() trace.SpanContext
}

type openTracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer backed by the global OTEL provider.
func NewTracer(name string) Tracer {
	return &openTracer{otel.Tracer(name)}
}

func (t *openTracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &traceSpan{span}
}

type traceSpan struct {
	span trace.Span
}

func (t *traceSpan) SetAttributes(attrs ...attribute.KeyValue) {
	t.span.SetAttributes(attrs...)
}

func (t *traceSpan) AddEvent(name string, attrs ...attribute.KeyValue) {
	t.span.AddEvent(name, trace.WithAttributes(attrs...))
}

func (t *traceSpan) NoticeError(err error) {
	t.span.RecordError(err)
	t.span.SetStatus(codes.Error, err.Error())
}

// Finish treats context.Canceled as a clean stop.
func (t *traceSpan) Finish(err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		t.NoticeError(err)
	} else {
		t.span.SetStatus(codes.Ok, "")
	}
	t.span.End()
}

func (t *traceSpan) SpanContext() trace.SpanContext {
	return t.span.SpanContext()
}
