package otel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config configures metric export.
type Config struct {
	// Endpoint is the OTLP/HTTP collector address, host:port. Empty
	// disables export.
	Endpoint string

	// Insecure sends metrics over plain HTTP.
	Insecure bool

	ServiceName string
	Interval    time.Duration
}

// Provider owns the meter provider behind a MetricsRecorder.
type Provider struct {
	Recorder *MetricsRecorder

	mp *sdkmetric.MeterProvider
}

// Setup creates a MetricsRecorder. With an endpoint configured, metrics are
// exported periodically over OTLP/HTTP and the provider is installed as the
// global meter provider; otherwise instruments record into the global
// provider, which discards them unless one was installed elsewhere.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "smartcrawl"
	}
	if cfg.Endpoint == "" {
		rec, err := NewMetricsRecorder(otel.Meter(cfg.ServiceName))
		if err != nil {
			return nil, err
		}
		return &Provider{Recorder: rec}, nil
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceInstanceID(uuid.NewString()),
	))
	if err != nil {
		return nil, fmt.Errorf("metric resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	rec, err := NewMetricsRecorder(mp.Meter(cfg.ServiceName))
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}
	return &Provider{Recorder: rec, mp: mp}, nil
}

// Shutdown flushes and stops metric export.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.mp == nil {
		return nil
	}
	return p.mp.Shutdown(ctx)
}
