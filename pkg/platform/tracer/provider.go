package tracer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ShutdownFunc flushes buffered spans and stops the exporter.
type ShutdownFunc func(context.Context) error

// ProviderConfig selects where spans are exported.
type ProviderConfig struct {
	// Endpoint is an OTLP/HTTP collector address such as "otel-collector:4318".
	// An empty endpoint leaves the global no-op provider in place.
	Endpoint    string
	Insecure    bool
	ServiceName string
	Environment string
	// SampleRatio is the fraction of new root traces recorded. Values outside
	// (0, 1] record everything.
	SampleRatio float64
}

// InstallProvider registers an SDK tracer provider exporting over OTLP/HTTP as
// the global provider so that NewOTel picks it up. With no endpoint it
// returns a no-op shutdown.
func InstallProvider(ctx context.Context, cfg ProviderConfig) (ShutdownFunc, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(cfg)),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newResource(cfg ProviderConfig) *resource.Resource {
	name := cfg.ServiceName
	if name == "" {
		name = instrumentationName
	}
	return resource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("deployment.environment", cfg.Environment),
	)
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.TraceIDRatioBased(ratio)
}
