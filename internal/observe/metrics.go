// Package observe provides application-wide observability primitives for
// typofix: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all typofix metrics.
const meterName = "github.com/MrWong99/typofix"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// CycleDuration tracks trigger-to-outcome latency of a correction cycle.
	// Use with attributes:
	//   attribute.String("kind", ...), attribute.String("reason", ...)
	CycleDuration metric.Float64Histogram

	// StageDuration tracks time spent in each controller state. Use with
	// attribute:
	//   attribute.String("state", ...)
	StageDuration metric.Float64Histogram

	// BackendDuration tracks correction backend latency. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("status", ...)
	BackendDuration metric.Float64Histogram

	// --- Counters ---

	// Cycles counts terminal outcomes. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("reason", ...)
	Cycles metric.Int64Counter

	// WriteAttempts counts write strategy attempts. Use with attributes:
	//   attribute.String("strategy", ...), attribute.String("status", ...)
	WriteAttempts metric.Int64Counter

	// BusyRejections counts triggers rejected while a cycle was in flight.
	BusyRejections metric.Int64Counter

	// ConfigReloads counts configuration hot reloads. Use with attribute:
	//   attribute.String("status", ...)
	ConfigReloads metric.Int64Counter

	// --- Error counters ---

	// BackendErrors counts failed backend calls. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("reason", ...)
	BackendErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCycles is 1 while a correction cycle is in flight.
	ActiveCycles metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   method, route, status and any [Annotate]d by the handler
	//   (e.g. the trigger outcome kind).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering a
// fast on-device correction up to a cold model load.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CycleDuration, err = m.Float64Histogram("typofix.cycle.duration",
		metric.WithDescription("Latency from trigger to terminal outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("typofix.stage.duration",
		metric.WithDescription("Time spent in each correction cycle state."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BackendDuration, err = m.Float64Histogram("typofix.backend.duration",
		metric.WithDescription("Latency of correction backend calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Cycles, err = m.Int64Counter("typofix.cycles",
		metric.WithDescription("Total correction cycles by outcome kind and reason."),
	); err != nil {
		return nil, err
	}
	if met.WriteAttempts, err = m.Int64Counter("typofix.write.attempts",
		metric.WithDescription("Total write strategy attempts by strategy and status."),
	); err != nil {
		return nil, err
	}
	if met.BusyRejections, err = m.Int64Counter("typofix.busy_rejections",
		metric.WithDescription("Triggers rejected because a cycle was already in flight."),
	); err != nil {
		return nil, err
	}
	if met.ConfigReloads, err = m.Int64Counter("typofix.config.reloads",
		metric.WithDescription("Configuration reloads by status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.BackendErrors, err = m.Int64Counter("typofix.backend.errors",
		metric.WithDescription("Total backend errors by backend and reason."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCycles, err = m.Int64UpDownCounter("typofix.active_cycles",
		metric.WithDescription("Number of correction cycles in flight (0 or 1)."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("typofix.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCycle records a terminal outcome: the cycle counter and the cycle
// duration histogram, both keyed by kind and reason.
func (m *Metrics) RecordCycle(ctx context.Context, kind, reason string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("reason", reason),
	)
	m.Cycles.Add(ctx, 1, attrs)
	m.CycleDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordStage records the time spent in one controller state.
func (m *Metrics) RecordStage(ctx context.Context, state string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("state", state)),
	)
}

// RecordBackendCall records backend latency. A non-empty reason also counts a
// backend error.
func (m *Metrics) RecordBackendCall(ctx context.Context, backend, reason string, d time.Duration) {
	status := "ok"
	if reason != "" {
		status = "error"
		m.RecordBackendError(ctx, backend, reason)
	}
	m.BackendDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("status", status),
		),
	)
}

// RecordBackendError is a convenience method that records a backend error
// counter increment.
func (m *Metrics) RecordBackendError(ctx context.Context, backend, reason string) {
	m.BackendErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("reason", reason),
		),
	)
}

// RecordWriteAttempt is a convenience method that records a write attempt
// counter increment with the standard attribute set.
func (m *Metrics) RecordWriteAttempt(ctx context.Context, strategy, status string) {
	m.WriteAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("strategy", strategy),
			attribute.String("status", status),
		),
	)
}

// RecordConfigReload counts a configuration reload.
func (m *Metrics) RecordConfigReload(ctx context.Context, status string) {
	m.ConfigReloads.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
