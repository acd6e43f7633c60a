// Package telemetry sets up the OpenTelemetry meter provider and, for the
// Prometheus exporter, the scrape handler.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Supported metrics exporters.
const (
	ExporterPrometheus = "prometheus"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)

// Config holds configuration for metrics.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Provider owns the meter provider for the process.
type Provider struct {
	meter   metric.Meter
	mp      *sdkmetric.MeterProvider
	handler http.Handler
}

// NewProvider builds a meter provider for serviceName. When metrics are
// disabled the meter discards everything and Handler returns nil.
func NewProvider(ctx context.Context, cfg Config, serviceName, version string) (*Provider, error) {
	if !cfg.Enabled || cfg.Exporter == ExporterNone {
		return &Provider{meter: noop.NewMeterProvider().Meter(serviceName)}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	p := &Provider{}
	var reader sdkmetric.Reader
	switch cfg.Exporter {
	case ExporterPrometheus, "":
		registry := prometheus.NewRegistry()
		exp, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		reader = exp
		p.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	case ExporterStdout:
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stdout))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metrics exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exp)
	default:
		return nil, fmt.Errorf("unknown metrics exporter %q", cfg.Exporter)
	}

	p.mp = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
	p.meter = p.mp.Meter(serviceName)
	return p, nil
}

// Meter returns the service meter.
func (p *Provider) Meter() metric.Meter {
	return p.meter
}

// Handler returns the Prometheus scrape handler, or nil if there is none.
func (p *Provider) Handler() http.Handler {
	return p.handler
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.mp == nil {
		return nil
	}
	return p.mp.Shutdown(ctx)
}
