package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/crmarques/catalogsync/config"
	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/logging"
)

const ServiceName = "catalogsync"

// ShutdownFunc flushes and stops a tracer provider.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// SetupTracing installs a global tracer provider exporting spans over OTLP
// gRPC. Without a tracing section the global no-op provider stays in place.
func SetupTracing(ctx context.Context, cfg *config.Tracing, version string) (ShutdownFunc, error) {
	if cfg == nil {
		return noopShutdown, nil
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, faults.NewTypedError(faults.ValidationError, "telemetry.tracing.endpoint is required", nil)
	}

	options := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.Insecure {
		options = append(options, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, options...)
	if err != nil {
		return nil, faults.NewTypedError(faults.TransportError, "failed to create otlp trace exporter", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(sdkresource.NewSchemaless(
			attribute.String("service.name", ServiceName),
			attribute.String("service.version", version),
		)),
	)
	otel.SetTracerProvider(provider)

	logging.FromContext(ctx).V(logging.DebugLevel).Info("tracing enabled", "endpoint", endpoint, "insecure", cfg.Insecure)
	return provider.Shutdown, nil
}
