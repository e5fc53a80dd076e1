// Package observe provides the OpenTelemetry metric instruments recorded by
// the voice session, plus a Prometheus exporter bridge so they can be scraped
// from /metrics.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/divinesarathi/voice"

// Metrics holds the metric instruments for the application. All fields are
// safe for concurrent use.
type Metrics struct {
	// ConnectAttempts counts connect attempts by outcome. Attribute:
	//   attribute.String("status", "ok"|<error kind>)
	ConnectAttempts metric.Int64Counter

	// NegotiationDuration tracks credential fetch plus SDP exchange latency.
	NegotiationDuration metric.Float64Histogram

	// ControlEvents counts inbound control channel events by type.
	ControlEvents metric.Int64Counter

	// SessionErrors counts errors surfaced to the user by kind.
	SessionErrors metric.Int64Counter

	// Turns counts completed recording turns.
	Turns metric.Int64Counter

	// ActiveSessions tracks sessions with an open control channel.
	ActiveSessions metric.Int64UpDownCounter
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ConnectAttempts, err = m.Int64Counter("sarathi.connect.attempts",
		metric.WithDescription("Connect attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.NegotiationDuration, err = m.Float64Histogram("sarathi.negotiation.duration",
		metric.WithDescription("Latency from connect to SDP answer applied."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ControlEvents, err = m.Int64Counter("sarathi.control.events",
		metric.WithDescription("Inbound control channel events by type."),
	); err != nil {
		return nil, err
	}
	if met.SessionErrors, err = m.Int64Counter("sarathi.session.errors",
		metric.WithDescription("Session errors by kind."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("sarathi.turns",
		metric.WithDescription("Committed recording turns."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("sarathi.active_sessions",
		metric.WithDescription("Sessions with an open control channel."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level instance built on the global meter
// provider. Call it after InitProvider.
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

// RecordConnect records one connect outcome. status is "ok" or an error kind.
func (m *Metrics) RecordConnect(ctx context.Context, status string, seconds float64) {
	if m == nil {
		return
	}
	m.ConnectAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if status == "ok" {
		m.NegotiationDuration.Record(ctx, seconds)
	}
}

// RecordEvent counts an inbound control event.
func (m *Metrics) RecordEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.ControlEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

// RecordError counts a surfaced error.
func (m *Metrics) RecordError(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.SessionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordTurn counts a committed turn.
func (m *Metrics) RecordTurn(ctx context.Context) {
	if m == nil {
		return
	}
	m.Turns.Add(ctx, 1)
}

// SessionActive adjusts the active session gauge by delta.
func (m *Metrics) SessionActive(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, delta)
}
