// Package tracing sets up the global OpenTelemetry tracer provider and
// propagator.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config is read from OTEL_* variables. The service identity is filled in
// by the caller.
type Config struct {
	Enabled       bool          `env:"ENABLED" envDefault:"false"`
	OTLPEndpoint  string        `env:"EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	Insecure      bool          `env:"EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ExportTimeout time.Duration `env:"EXPORTER_OTLP_TIMEOUT" envDefault:"10s"`
	SampleRate    float64       `env:"SAMPLE_RATE" envDefault:"1.0"`

	ServiceName    string `env:"-"`
	ServiceVersion string `env:"-"`
	Environment    string `env:"-"`
}

// Shutdown flushes buffered spans.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// sampler keeps root decisions at rate and follows the parent otherwise.
// Rates outside (0, 1) collapse to always or never.
func sampler(rate float64) sdktrace.Sampler {
	if rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	if rate <= 0 {
		return sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// Init installs W3C trace context and baggage propagation and, when enabled,
// an OTLP/HTTP exporting provider. Propagation is installed either way so
// incoming trace ids still reach the logs.
func Init(ctx context.Context, cfg Config) (Shutdown, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	if !cfg.Enabled {
		return noop, nil
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithTimeout(cfg.ExportTimeout),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter for %s: %w", cfg.OTLPEndpoint, err)
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
		sdktrace.WithBatcher(exp),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns a tracer from the global provider, so it picks up
// whatever Init installed.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
