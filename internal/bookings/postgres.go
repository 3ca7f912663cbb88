package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ridelinehq/dispatchd/internal/booking"
)

// schema creates the bookings table. Idempotent so every startup can run it.
const schema = `
CREATE TABLE IF NOT EXISTS bookings (
	id              UUID PRIMARY KEY,
	name            TEXT NOT NULL,
	passengers      TEXT NOT NULL,
	luggage         TEXT NOT NULL,
	child_seats     TEXT NOT NULL,
	wheelchair      TEXT NOT NULL,
	pickup_postcode TEXT NOT NULL,
	pickup          TEXT NOT NULL,
	dropoff         TEXT NOT NULL,
	phone           TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
`

const insertBooking = `
INSERT INTO bookings
	(id, name, passengers, luggage, child_seats, wheelchair,
	 pickup_postcode, pickup, dropoff, phone, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

// PostgresStore appends confirmed bookings to a PostgreSQL table. Each row
// gets a generated UUID and an insertion timestamp on top of the canonical
// booking columns.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore establishes a connection pool to the database at dsn and
// ensures the bookings table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("bookings: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bookings: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bookings: ensure schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Append implements [Store].
func (s *PostgresStore) Append(ctx context.Context, rec booking.Record) error {
	_, err := s.pool.Exec(ctx, insertBooking,
		uuid.New(),
		rec.Name,
		rec.Passengers,
		rec.Luggage,
		rec.ChildSeats,
		rec.Wheelchair,
		rec.PickupPostcode,
		rec.Pickup,
		rec.Dropoff,
		rec.Phone,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("bookings: insert: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable. Used by the readiness
// probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements [Store].
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
