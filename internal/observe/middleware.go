package observe

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader names the response header carrying [CorrelationID].
// Handlers that run a correction cycle overwrite it with the cycle id.
const CorrelationHeader = "X-Correlation-ID"

// unmatchedRoute replaces the path of requests no route served, so scanners
// cannot grow the duration histogram without bound.
const unmatchedRoute = "unmatched"

// statusRecorder captures the status code written by the downstream handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the wrapped writer to [http.ResponseController].
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

type notesKey struct{}

// notes collects the attributes handlers attach with [Annotate].
type notes struct {
	mu    sync.Mutex
	attrs []attribute.KeyValue
}

func (n *notes) snapshot() []attribute.KeyValue {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]attribute.KeyValue(nil), n.attrs...)
}

// Annotate attaches attrs to the request served under ctx. [Middleware]
// records them on the request span, the duration histogram and the
// completion log, so they must have few distinct values. Outside a request
// served by [Middleware] it does nothing.
//
// Example:
//
//	observe.Annotate(r.Context(), attribute.String("outcome", o.Kind.String()))
func Annotate(ctx context.Context, attrs ...attribute.KeyValue) {
	n, ok := ctx.Value(notesKey{}).(*notes)
	if !ok {
		return
	}
	n.mu.Lock()
	n.attrs = append(n.attrs, attrs...)
	n.mu.Unlock()
}

// Middleware traces, times and logs every request on the control surface.
//
// Incoming W3C trace context is honoured. The response carries
// [CorrelationHeader], and the completion log uses whatever value the handler
// left in it, so a synchronous trigger logs under its cycle id. Successful
// GETs (metric scrapes, health checks) log at debug; everything else at info.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if cid := CorrelationID(ctx); cid != "" {
				w.Header().Set(CorrelationHeader, cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			n := &notes{}
			ctx = context.WithValue(ctx, notesKey{}, n)
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			duration := time.Since(start)
			route := r.URL.Path
			if rec.statusCode == http.StatusNotFound {
				route = unmatchedRoute
			}
			span.SetName("HTTP " + r.Method + " " + route)

			extra := n.snapshot()
			attrs := append([]attribute.KeyValue{
				attribute.String("method", r.Method),
				attribute.String("route", route),
				attribute.Int("status", rec.statusCode),
			}, extra...)
			m.HTTPRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

			span.SetAttributes(semconv.HTTPResponseStatusCode(rec.statusCode))
			span.SetAttributes(extra...)
			if rec.statusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.statusCode))
			}

			level := slog.LevelInfo
			if r.Method == http.MethodGet && rec.statusCode < http.StatusBadRequest {
				level = slog.LevelDebug
			}
			logAttrs := []slog.Attr{
				slog.String("correlation_id", w.Header().Get(CorrelationHeader)),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Duration("duration", duration),
			}
			for _, kv := range extra {
				logAttrs = append(logAttrs, slog.Any(string(kv.Key), kv.Value.AsInterface()))
			}
			slog.LogAttrs(ctx, level, "request completed", logAttrs...)
		})
	}
}
