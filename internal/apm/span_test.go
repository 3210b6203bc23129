package apm

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpan_Finish(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "ok", want: codes.Ok},
		{name: "cancelled", err: context.Canceled, want: codes.Ok},
		{name: "failed", err: errors.New("boom"), want: codes.Error},
	}

	tracer := NewTracer("apm-test")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, span := tracer.StartSpan(context.Background(), tt.name, attribute.String("case", tt.name))
			span.Finish(tt.err)

			ended := rec.Ended()
			got := ended[len(ended)-1]
			if got.Name() != tt.name {
				t.Fatalf("last span = %q", got.Name())
			}
			if got.Status().Code != tt.want {
				t.Errorf("status = %v, want %v", got.Status().Code, tt.want)
			}
		})
	}
}
