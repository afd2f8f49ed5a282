// Package observability exports the trust engine's traces and metrics over
// OTLP.
//
// A disabled Provider hands out no-op tracers and meters, so callers never
// branch on whether telemetry is configured.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	instrumentationName = "trustengine"
	serviceName         = "trustengine"
)

// Config selects the OTLP collector. The zero value is disabled.
type Config struct {
	Enabled        bool
	OTLPEndpoint   string // gRPC host:port
	Insecure       bool
	ServiceVersion string
	// ExportInterval is the metric push period; zero keeps the SDK default.
	ExportInterval time.Duration
}

// DefaultConfig points at a local collector with telemetry switched off.
func DefaultConfig() *Config {
	return &Config{
		OTLPEndpoint:   "localhost:4317",
		ServiceVersion: "1.0.0",
		ExportInterval: 15 * time.Second,
	}
}

// Provider owns the SDK providers for one process.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	metrics        *Metrics
}

// New starts the exporters when cfg is enabled and installs them as the
// global otel providers. A nil cfg uses DefaultConfig.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := slog.Default().With("component", "observability")

	if !cfg.Enabled {
		logger.DebugContext(ctx, "telemetry disabled")
		return &Provider{
			tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
			meter:  noop.NewMeterProvider().Meter(instrumentationName),
		}, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = traceExp.Shutdown(ctx)
		return nil, fmt.Errorf("metric exporter: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.ExportInterval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.ExportInterval))
	}

	p := &Provider{
		tracerProvider: sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(traceExp),
		),
		meterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, readerOpts...)),
		),
	}
	p.tracer = p.tracerProvider.Tracer(instrumentationName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	p.meter = p.meterProvider.Meter(instrumentationName, metric.WithInstrumentationVersion(cfg.ServiceVersion))

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	logger.InfoContext(ctx, "telemetry enabled", "endpoint", cfg.OTLPEndpoint, "insecure", cfg.Insecure)
	return p, nil
}

// Shutdown flushes pending spans and metrics. Safe on a disabled or nil
// Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (p *Provider) Tracer() trace.Tracer { return p.tracer }

func (p *Provider) Meter() metric.Meter { return p.meter }

// Metrics returns the engine instruments, creating them on first use.
func (p *Provider) Metrics() (*Metrics, error) {
	if p.metrics != nil {
		return p.metrics, nil
	}
	m, err := NewMetrics(p.meter)
	if err != nil {
		return nil, err
	}
	p.metrics = m
	return m, nil
}

// Track opens a span around one CLI operation. The returned func ends it,
// marking the span failed when err is non-nil.
func (p *Provider) Track(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
