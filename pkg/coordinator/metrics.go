package coordinator

import (
	"context"
	"time"

	"github.com/illmade-knight/go-apicache/pkg/upstream"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Request outcomes recorded on apicache.requests.
const (
	outcomeHit      = "hit"
	outcomeFresh    = "fresh"
	outcomeFallback = "stale_fallback"
	outcomeFailed   = "failed"
)

// Metrics records cache and upstream activity. It is safe for concurrent use.
type Metrics struct {
	requests      metric.Int64Counter
	fetches       metric.Int64Counter
	fetchErrors   metric.Int64Counter
	fallbacks     metric.Int64Counter
	fetchDuration metric.Float64Histogram
}

// NewMetrics creates the coordinator's instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	requests, err := meter.Int64Counter(
		"apicache.requests",
		metric.WithDescription("Data requests served, by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	fetches, err := meter.Int64Counter(
		"apicache.fetch.total",
		metric.WithDescription("Outbound requests made to the upstream API"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	fetchErrors, err := meter.Int64Counter(
		"apicache.fetch.errors",
		metric.WithDescription("Failed upstream requests, by failure kind"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	fallbacks, err := meter.Int64Counter(
		"apicache.fallback.total",
		metric.WithDescription("Requests answered with stale data after an upstream failure"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	fetchDuration, err := meter.Float64Histogram(
		"apicache.fetch.duration_ms",
		metric.WithDescription("Upstream request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		requests:      requests,
		fetches:       fetches,
		fetchErrors:   fetchErrors,
		fallbacks:     fallbacks,
		fetchDuration: fetchDuration,
	}, nil
}

// noopMetrics returns instruments that discard everything.
func noopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("noop"))
	return m
}

func (m *Metrics) recordRequest(ctx context.Context, outcome string, forced bool) {
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("forced", forced),
	))
	if outcome == outcomeFallback {
		m.fallbacks.Add(ctx, 1)
	}
}

func (m *Metrics) recordFetch(ctx context.Context, elapsed time.Duration, err error) {
	m.fetches.Add(ctx, 1)
	m.fetchDuration.Record(ctx, float64(elapsed.Milliseconds()))
	if err != nil {
		m.fetchErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", upstream.KindOf(err).String()),
		))
	}
}
