package monitoring

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

func TestSpanAndTraceIDInLogs(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	ctx, span := StartSpan(context.Background(), "test.operation")
	AddSpanAttributes(span, attribute.String("task.kind", "image"))
	RecordSpanError(span, errors.New("boom"))
	RecordSpanError(span, nil)

	entry := NewNopLogger().WithContext(ctx)
	traceID, ok := entry.Data["trace_id"].(string)
	if !ok || traceID != span.SpanContext().TraceID().String() {
		t.Errorf("trace_id = %v, ожидался %s", entry.Data["trace_id"], span.SpanContext().TraceID())
	}
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("завершено %d span, ожидался 1", len(ended))
	}
	got := ended[0]
	if got.Name() != "test.operation" {
		t.Errorf("имя span %q", got.Name())
	}
	if got.Status().Code != codes.Error || len(got.Events()) != 1 {
		t.Errorf("ошибка не записана: status=%v events=%d", got.Status(), len(got.Events()))
	}
	if len(got.Attributes()) != 1 || got.Attributes()[0].Value.AsString() != "image" {
		t.Errorf("атрибуты span: %v", got.Attributes())
	}
}

func TestWithContextWithoutSpan(t *testing.T) {
	entry := NewNopLogger().WithContext(context.Background())
	if _, ok := entry.Data["trace_id"]; ok {
		t.Error("trace_id не должен появляться без span")
	}
}
