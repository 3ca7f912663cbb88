// Package observe provides application-wide observability primitives for
// dispatchd: OpenTelemetry metrics, tracing helpers, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all dispatchd metrics.
const meterName = "github.com/ridelinehq/dispatchd"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks end-to-end processing time of one caller turn.
	TurnDuration metric.Float64Histogram

	// InterpreterDuration tracks interpreter round-trip latency.
	InterpreterDuration metric.Float64Histogram

	// AddressLookupDuration tracks address index round-trip latency.
	AddressLookupDuration metric.Float64Histogram

	// --- Counters ---

	// InterpreterRequests counts interpreter calls. Use with attribute:
	//   attribute.String("status", "ok"|"error"|"rejected")
	InterpreterRequests metric.Int64Counter

	// AddressLookups counts address correction passes. Use with attribute:
	//   attribute.String("outcome", "corrected"|"unmatched"|"error")
	AddressLookups metric.Int64Counter

	// BookingsPersisted counts booking store appends. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	BookingsPersisted metric.Int64Counter

	// EmptyTurns counts turns where no speech was recognised.
	EmptyTurns metric.Int64Counter

	// --- Gauges ---

	// ActiveCalls tracks the number of live call sessions.
	ActiveCalls metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// voice-turn latencies, which are dominated by the interpreter round trip.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("dispatchd.turn.duration",
		metric.WithDescription("End-to-end latency of one caller turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InterpreterDuration, err = m.Float64Histogram("dispatchd.interpreter.duration",
		metric.WithDescription("Latency of interpreter round trips."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AddressLookupDuration, err = m.Float64Histogram("dispatchd.address_lookup.duration",
		metric.WithDescription("Latency of address index lookups."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.InterpreterRequests, err = m.Int64Counter("dispatchd.interpreter.requests",
		metric.WithDescription("Total interpreter requests by status."),
	); err != nil {
		return nil, err
	}
	if met.AddressLookups, err = m.Int64Counter("dispatchd.address.lookups",
		metric.WithDescription("Total address correction passes by outcome."),
	); err != nil {
		return nil, err
	}
	if met.BookingsPersisted, err = m.Int64Counter("dispatchd.bookings.persisted",
		metric.WithDescription("Total booking store appends by status."),
	); err != nil {
		return nil, err
	}
	if met.EmptyTurns, err = m.Int64Counter("dispatchd.turns.empty",
		metric.WithDescription("Turns with no recognised speech."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCalls, err = m.Int64UpDownCounter("dispatchd.active_calls",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("dispatchd.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordInterpreterRequest records one interpreter call with its status.
func (m *Metrics) RecordInterpreterRequest(ctx context.Context, status string) {
	m.InterpreterRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordAddressLookup records one address correction pass with its outcome.
func (m *Metrics) RecordAddressLookup(ctx context.Context, outcome string) {
	m.AddressLookups.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordBookingPersisted records one booking store append with its status.
func (m *Metrics) RecordBookingPersisted(ctx context.Context, status string) {
	m.BookingsPersisted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
