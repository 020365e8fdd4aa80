package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultScope = "minishop-checkout"

type tracer struct{ t trace.Tracer }

// New returns a tracer bound to the global provider; configure it with otelsdk.Setup first.
// Spans it starts are internal unless the caller already holds a server or consumer span.
func New(scope, version string) observability.Tracer {
	if scope == "" {
		scope = defaultScope
	}
	var opts []trace.TracerOption
	if version != "" {
		opts = append(opts, trace.WithInstrumentationVersion(version))
	}
	return &tracer{t: otel.Tracer(scope, opts...)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindInternal))
}
