package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// serviceName is the OTel service.name of every exported span.
const serviceName = "cachegate"

// ShutdownFunc flushes and stops span export.
type ShutdownFunc func(context.Context) error

// TracingOptions configures OTLP export of origin call spans.
type TracingOptions struct {
	Enabled    bool
	Endpoint   string  // OTLP gRPC host:port; empty uses the exporter default
	Insecure   bool    // plaintext gRPC to the collector
	SampleRate float64 // 0.0 to 1.0
	Version    string
}

// SetupTracing installs a global tracer provider exporting over OTLP gRPC.
// Disabled tracing leaves the global no-op provider in place.
func SetupTracing(ctx context.Context, opts TracingOptions) (ShutdownFunc, error) {
	if !opts.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx, exporterOptions(opts)...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(opts.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(opts.SampleRate)),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func exporterOptions(opts TracingOptions) []otlptracegrpc.Option {
	var out []otlptracegrpc.Option
	if opts.Endpoint != "" {
		out = append(out, otlptracegrpc.WithEndpoint(opts.Endpoint))
	}
	if opts.Insecure {
		out = append(out, otlptracegrpc.WithInsecure())
	}
	return out
}

// sampler honours the parent decision for fractional rates so a trace
// started upstream of the proxy is not split.
func sampler(rate float64) sdktrace.Sampler {
	if rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	if rate <= 0 {
		return sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// Tracer returns a named tracer from the global provider. Until
// SetupTracing installs a provider it is a no-op.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
