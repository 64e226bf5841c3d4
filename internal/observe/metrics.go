// Package observe provides the OpenTelemetry metric instruments for the
// capture pipeline, with a Prometheus exporter bridge so the instruments
// surface on the standard /metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all capture metrics.
const meterName = "github.com/tapcast/tapcast"

// Metrics holds the metric instruments for the capture pipeline. All
// fields are safe for concurrent use.
type Metrics struct {
	// FramesSent counts audio frames handed to the channel for delivery.
	FramesSent metric.Int64Counter

	// FramesDropped counts frames dropped because the channel was down.
	FramesDropped metric.Int64Counter

	// Reconnects counts channel reconnection cycles.
	Reconnects metric.Int64Counter

	// SessionOutcomes counts finished capture sessions. Use with
	// attribute.String("outcome", "completed"|"failed").
	SessionOutcomes metric.Int64Counter

	// ActiveSessions tracks whether a capture session is running (0 or 1).
	ActiveSessions metric.Int64UpDownCounter

	// Volume records the most recent RMS volume level, 0 to 1.
	Volume metric.Float64Gauge

	// TickDuration tracks per-block capture processing time, read
	// excluded.
	TickDuration metric.Float64Histogram
}

// tickBuckets defines histogram boundaries (seconds) sized for per-block
// processing that should stay well under the 256ms block interval.
var tickBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.1, 0.25,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// provider. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesSent, err = m.Int64Counter("tapcast.frames.sent",
		metric.WithDescription("Audio frames handed to the channel for delivery."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("tapcast.frames.dropped",
		metric.WithDescription("Audio frames dropped while the channel was down."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("tapcast.channel.reconnects",
		metric.WithDescription("Channel reconnection cycles."),
	); err != nil {
		return nil, err
	}
	if met.SessionOutcomes, err = m.Int64Counter("tapcast.sessions.finished",
		metric.WithDescription("Finished capture sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("tapcast.sessions.active",
		metric.WithDescription("Running capture sessions."),
	); err != nil {
		return nil, err
	}
	if met.Volume, err = m.Float64Gauge("tapcast.volume.rms",
		metric.WithDescription("Most recent RMS volume level, 0 to 1."),
	); err != nil {
		return nil, err
	}
	if met.TickDuration, err = m.Float64Histogram("tapcast.tick.duration",
		metric.WithDescription("Per-block capture processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(tickBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call from the global meter provider. Panics if instrument
// creation fails, which does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordSessionOutcome records a finished session with its outcome
// attribute.
func (m *Metrics) RecordSessionOutcome(ctx context.Context, outcome string) {
	m.SessionOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}
