// Package tracing wires OpenTelemetry with an OTLP gRPC exporter, the
// shape the teacher's internal/app/application.go drives
// (`tracing.Config{Enabled, CollectorURL, Environment, SampleRate}`,
// `tracing.InitTracer(ctx, cfg, zapLogger) (shutdown func(context.Context) error, error)`).
// The teacher's own pkg/tracing source is not present in the retrieval
// pack; this reconstructs it from that call site using the declared
// go.opentelemetry.io/otel(+otlptracegrpc,sdk,trace) dependencies.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"
)

// Config controls whether tracing is wired up at all and at what
// sampling rate, mirroring the teacher's call-site shape.
type Config struct {
	Enabled      bool
	CollectorURL string
	Environment  string
	SampleRate   float64
}

// InitTracer configures the global OpenTelemetry tracer provider with
// an OTLP/gRPC exporter and returns a shutdown function. If cfg.Enabled
// is false, it leaves the global provider untouched and returns a
// shutdown that does nothing, so callers never need to branch on
// whether tracing is live.
func InitTracer(ctx context.Context, cfg Config, log *zap.Logger) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.CollectorURL), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("tracing: create exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName("procguard-core"),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(provider)

	log.Info("tracing provider installed", zap.String("collector_url", cfg.CollectorURL), zap.Float64("sample_rate", cfg.SampleRate))

	return provider.Shutdown, nil
}
