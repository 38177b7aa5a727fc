package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/typofix"

// Tracer returns the typofix tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

type cycleKey struct{}

// WithCycleID returns a copy of ctx that belongs to the correction cycle id.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleKey{}, id)
}

// CycleID returns the correction cycle ctx belongs to, or "".
func CycleID(ctx context.Context) string {
	id, _ := ctx.Value(cycleKey{}).(string)
	return id
}

// CorrelationID identifies the work ctx belongs to in logs, outcomes and the
// X-Correlation-ID header. Inside a correction cycle it is the cycle id,
// which is also what the outcome journal and event stream carry. Elsewhere it
// is the trace id, or "" without an active span.
func CorrelationID(ctx context.Context) string {
	if id := CycleID(ctx); id != "" {
		return id
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with the cycle_id, trace_id and span_id
// of ctx attached, where present.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := CycleID(ctx); id != "" {
		l = l.With(slog.String("cycle_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
