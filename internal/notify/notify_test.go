package notify_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ridelinehq/dispatchd/internal/booking"
	"github.com/ridelinehq/dispatchd/internal/notify"
)

func TestBookingConfirmed_NoopWithoutConnection(t *testing.T) {
	t.Parallel()

	// A nil publisher and a zero-value publisher must both be safe to use.
	var p *notify.Publisher
	p.BookingConfirmed("CA1", booking.Record{Name: "Alice"})
	p.Close()

	var zero notify.Publisher
	zero.BookingConfirmed("CA1", booking.Record{Name: "Alice"})
	zero.Close()
}

func TestBookingConfirmedEvent_RoundTrip(t *testing.T) {
	t.Parallel()

	ev := notify.BookingConfirmed{
		CallID:      "CA123",
		Booking:     booking.Record{Name: "Alice", Phone: "+44700900123"},
		ConfirmedAt: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]json.RawMessage
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"call_id", "booking", "confirmed_at"} {
		if _, ok := got[key]; !ok {
			t.Errorf("event payload missing %q key", key)
		}
	}
}
