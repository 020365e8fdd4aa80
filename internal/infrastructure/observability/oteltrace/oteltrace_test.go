package oteltrace

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestStartRecordsInternalSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tr := New("", "1.2.3")
	_, span := tr.Start(context.Background(), "UC.PlaceOrder", attribute.String("product_id", "p-1"))
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	got := ended[0]
	if got.Name() != "UC.PlaceOrder" {
		t.Fatalf("name = %q", got.Name())
	}
	if got.SpanKind() != trace.SpanKindInternal {
		t.Fatalf("kind = %v", got.SpanKind())
	}
	if scope := got.InstrumentationScope(); scope.Name != defaultScope || scope.Version != "1.2.3" {
		t.Fatalf("scope = %+v", scope)
	}
	var found bool
	for _, kv := range got.Attributes() {
		if kv.Key == "product_id" && kv.Value.AsString() == "p-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing product_id attribute: %v", got.Attributes())
	}
}
