// Package observability wires OpenTelemetry tracing for the advisor.
//
// Spans are exported over OTLP HTTP to whatever collector the endpoint
// points at (an otel-collector, Jaeger, or a vendor agent). Tracing is
// best-effort: when no endpoint is configured, or the exporter cannot
// be created, the application runs with tracing disabled rather than
// failing startup.
//
// Environment variables (optional):
//   - ERASMO_OTLP_ENDPOINT: collector endpoint, e.g. "localhost:4318"
//   - ERASMO_ENVIRONMENT: deployment environment tag (default: dev)
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/erasmolabs/erasmo/internal/log"
)

// Config for the OTLP trace exporter.
type Config struct {
	// Endpoint is the OTLP HTTP endpoint without scheme, e.g.
	// "localhost:4318". Empty disables tracing.
	Endpoint string
	// ServiceName appears as service.name on every span.
	ServiceName string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
}

// DefaultServiceName is used when Config.ServiceName is empty.
const DefaultServiceName = "erasmo"

// noopShutdown is returned when tracing is disabled.
func noopShutdown(context.Context) error { return nil }

// Setup installs a global TracerProvider exporting to the configured
// OTLP endpoint. The returned shutdown function flushes pending spans
// and must be called before process exit.
func Setup(ctx context.Context, cfg Config, logger log.Logger) (shutdown func(context.Context) error, err error) {
	if cfg.Endpoint == "" {
		logger.Debug("tracing disabled, no OTLP endpoint configured")
		return noopShutdown, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("failed to create OTLP exporter, tracing disabled", "error", err)
		return noopShutdown, nil
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		attribute.String("deployment.environment", cfg.Environment),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	logger.Debug("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", serviceName,
		"environment", cfg.Environment,
	)

	return provider.Shutdown, nil
}
