// Package observe provides application-wide observability primitives for
// humvec: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all humvec metrics.
const meterName = "github.com/MrWong99/humvec"

// Metrics holds all OpenTelemetry metric instruments for the service.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// DecodeDuration tracks upload decode + resample latency.
	DecodeDuration metric.Float64Histogram

	// EncodeDuration tracks encoder forward-pass latency (preprocessing,
	// inference, and pooling).
	EncodeDuration metric.Float64Histogram

	// EmbedDuration tracks end-to-end /embed pipeline latency.
	EmbedDuration metric.Float64Histogram

	// --- Counters ---

	// EmbedRequests counts embed pipeline runs. Use with attribute:
	//   attribute.String("status", "ok"|"client_error"|"inference_error")
	EmbedRequests metric.Int64Counter

	// EmbedErrors counts embed pipeline failures by stage. Use with attribute:
	//   attribute.String("stage", "validate"|"decode"|"encode")
	EmbedErrors metric.Int64Counter

	// --- Gauges ---

	// InFlightRequests tracks the number of /embed requests currently being
	// processed.
	InFlightRequests metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", <matched pattern>),
	//   attribute.String("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// everything from sub-millisecond decodes to multi-second CPU inference.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.DecodeDuration, err = m.Float64Histogram("humvec.decode.duration",
		metric.WithDescription("Latency of upload decoding and resampling."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EncodeDuration, err = m.Float64Histogram("humvec.encode.duration",
		metric.WithDescription("Latency of the encoder forward pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbedDuration, err = m.Float64Histogram("humvec.embed.duration",
		metric.WithDescription("End-to-end embed pipeline latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.EmbedRequests, err = m.Int64Counter("humvec.embed.requests",
		metric.WithDescription("Total embed pipeline runs by status."),
	); err != nil {
		return nil, err
	}
	if met.EmbedErrors, err = m.Int64Counter("humvec.embed.errors",
		metric.WithDescription("Total embed pipeline failures by stage."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.InFlightRequests, err = m.Int64UpDownCounter("humvec.embed.in_flight",
		metric.WithDescription("Number of embed requests currently being processed."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("humvec.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route, and status."),
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

// RecordEmbedRequest is a convenience method that records an embed pipeline
// run with its outcome status.
func (m *Metrics) RecordEmbedRequest(ctx context.Context, status string) {
	m.EmbedRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordEmbedError is a convenience method that records an embed pipeline
// failure at the given stage.
func (m *Metrics) RecordEmbedError(ctx context.Context, stage string) {
	m.EmbedErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
