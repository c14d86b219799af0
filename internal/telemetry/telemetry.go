// Package telemetry wires the Service's OpenTelemetry metrics and
// tracing: always-on stdout exporters, plus an optional OTLP-over-HTTP
// metric push exporter gated on HSTRY_OTLP_ENDPOINT.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	stdoutmetric "go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// EnvOTLPEndpoint, when set, adds a push metric exporter alongside the
// always-on stdout one.
const EnvOTLPEndpoint = "HSTRY_OTLP_ENDPOINT"

const scopeName = "github.com/byteowlz/hstry/internal/service"

// Metrics holds the counters/histograms the Service instruments, plus
// the tracer its long-running operations open spans on.
type Metrics struct {
	IngestBatches metric.Int64Counter
	IngestRecords metric.Int64Counter
	IndexDrainMs  metric.Float64Histogram
	RPCRequests   metric.Int64Counter

	Tracer trace.Tracer

	shutdowns []func(context.Context) error
}

// Setup builds a MeterProvider (stdout + optional OTLP) and a
// TracerProvider (stdout), registers both globally, and returns the
// instruments the rest of the Service uses.
func Setup(ctx context.Context) (*Metrics, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("hstry"),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	stdoutExp, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
	}
	opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(stdoutExp)))

	if endpoint := os.Getenv(EnvOTLPEndpoint); endpoint != "" {
		otlpExp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(endpoint))
		if err != nil {
			slog.Warn("telemetry: otlp exporter unavailable, continuing with stdout only", "endpoint", endpoint, "err", err)
		} else {
			opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlpExp)))
		}
	}

	provider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(provider)
	meter := provider.Meter(scopeName)

	traceExp, err := stdouttrace.New()
	if err != nil {
		provider.Shutdown(ctx) //nolint:errcheck
		return nil, fmt.Errorf("telemetry: stdout trace exporter: %w", err)
	}
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(traceProvider)

	ingestBatches, err := meter.Int64Counter("hstry.ingest.batches")
	if err != nil {
		return nil, err
	}
	ingestRecords, err := meter.Int64Counter("hstry.ingest.records")
	if err != nil {
		return nil, err
	}
	indexDrainMs, err := meter.Float64Histogram("hstry.index.drain_ms")
	if err != nil {
		return nil, err
	}
	rpcRequests, err := meter.Int64Counter("hstry.rpc.requests")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		IngestBatches: ingestBatches,
		IngestRecords: ingestRecords,
		IndexDrainMs:  indexDrainMs,
		RPCRequests:   rpcRequests,
		Tracer:        traceProvider.Tracer(scopeName),
		shutdowns:     []func(context.Context) error{traceProvider.Shutdown, provider.Shutdown},
	}, nil
}

// Shutdown flushes and stops both providers.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	var firstErr error
	for _, fn := range m.shutdowns {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
