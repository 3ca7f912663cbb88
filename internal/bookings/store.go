// Package bookings persists confirmed booking records.
//
// A [Store] is append-only: dispatchd never reads bookings back — downstream
// dispatch tooling consumes the CSV file or the Postgres table directly.
// Appends must be durable before returning, since the caller is told their
// ride is booked immediately afterwards.
package bookings

import (
	"context"

	"github.com/ridelinehq/dispatchd/internal/booking"
)

// Store is the abstraction over any confirmed-booking sink.
//
// Implementations must be safe for concurrent use; concurrent appends from
// different calls may interleave but each record must be written whole.
type Store interface {
	// Append durably writes one confirmed booking.
	Append(ctx context.Context, rec booking.Record) error

	// Close releases underlying resources. The store must not be used
	// afterwards.
	Close() error
}
