package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordInterpreterRequest(ctx, "ok")
	m.RecordInterpreterRequest(ctx, "error")
	m.RecordAddressLookup(ctx, "corrected")
	m.RecordBookingPersisted(ctx, "ok")
	m.ActiveCalls.Add(ctx, 1)
	m.EmptyTurns.Add(ctx, 1)

	rm := collect(t, reader)

	for _, name := range []string{
		"dispatchd.interpreter.requests",
		"dispatchd.address.lookups",
		"dispatchd.bookings.persisted",
		"dispatchd.active_calls",
		"dispatchd.turns.empty",
	} {
		if findMetric(rm, name) == nil {
			t.Errorf("metric %q not recorded", name)
		}
	}
}

func TestRecordHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.TurnDuration.Record(ctx, 1.2)
	m.InterpreterDuration.Record(ctx, 0.9)
	m.AddressLookupDuration.Record(ctx, 0.05)

	rm := collect(t, reader)

	for _, name := range []string{
		"dispatchd.turn.duration",
		"dispatchd.interpreter.duration",
		"dispatchd.address_lookup.duration",
	} {
		mt := findMetric(rm, name)
		if mt == nil {
			t.Fatalf("metric %q not recorded", name)
		}
		hist, ok := mt.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Fatalf("metric %q: data type %T, want Histogram[float64]", name, mt.Data)
		}
		if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 1 {
			t.Errorf("metric %q: want exactly one observation", name)
		}
	}
}
