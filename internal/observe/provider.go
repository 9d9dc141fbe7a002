package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// serviceName is the name humvec reports in all telemetry.
const serviceName = "humvec"

// providerOptions collects the InitProvider knobs.
type providerOptions struct {
	serviceVersion string
	traceExporter  sdktrace.SpanExporter
}

// ProviderOption configures [InitProvider].
type ProviderOption func(*providerOptions)

// WithServiceVersion stamps the telemetry resource with the build version.
func WithServiceVersion(v string) ProviderOption {
	return func(o *providerOptions) { o.serviceVersion = v }
}

// WithTraceExporter wires a span exporter (typically OTLP). Without one,
// spans are recorded in-process — trace IDs still flow into logs and the
// X-Correlation-ID header — but never leave the service.
func WithTraceExporter(exp sdktrace.SpanExporter) ProviderOption {
	return func(o *providerOptions) { o.traceExporter = exp }
}

// InitProvider registers the global OTel providers: a meter provider backed
// by the Prometheus exporter, so every instrument in [Metrics] surfaces on
// the /metrics scrape endpoint, and a tracer provider feeding the request
// spans started by [Middleware] and the pipeline.
//
// The returned shutdown function flushes both providers; call it in a defer
// from main.
func InitProvider(ctx context.Context, opts ...ProviderOption) (func(context.Context) error, error) {
	var o providerOptions
	for _, opt := range opts {
		opt(&o)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(o.serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if o.traceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(o.traceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
	}, nil
}
