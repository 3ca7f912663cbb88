package bookings_test

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/ridelinehq/dispatchd/internal/booking"
	"github.com/ridelinehq/dispatchd/internal/bookings"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %q: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %q: %v", path, err)
	}
	return rows
}

func sampleRecord() booking.Record {
	return booking.Record{
		Name:           "Alice",
		Passengers:     "2",
		Luggage:        "20 kg",
		ChildSeats:     "1",
		Wheelchair:     "no",
		PickupPostcode: "NW1 6XE",
		Pickup:         "12 Baker Street",
		Dropoff:        "Heathrow Terminal 5",
		Phone:          "+44700900123",
	}
}

func TestCSVStore_WritesHeaderAndRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "booking.csv")
	s, err := bookings.NewCSVStore(path)
	if err != nil {
		t.Fatalf("NewCSVStore: %v", err)
	}

	rec := sampleRecord()
	if err := s.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rows := readAll(t, path)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header + 1", len(rows))
	}
	if !slices.Equal(rows[0], booking.FieldNames) {
		t.Errorf("header=%v, want %v", rows[0], booking.FieldNames)
	}
	if !slices.Equal(rows[1], rec.Values()) {
		t.Errorf("row=%v, want %v", rows[1], rec.Values())
	}
}

func TestCSVStore_ReopenAppendsWithoutSecondHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "booking.csv")

	s, err := bookings.NewCSVStore(path)
	if err != nil {
		t.Fatalf("NewCSVStore: %v", err)
	}
	if err := s.Append(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	s.Close()

	s, err = bookings.NewCSVStore(path)
	if err != nil {
		t.Fatalf("NewCSVStore reopen: %v", err)
	}
	rec := sampleRecord()
	rec.Name = "Bob"
	if err := s.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	s.Close()

	rows := readAll(t, path)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[2][0] != "Bob" {
		t.Errorf("rows[2][0]=%q, want Bob", rows[2][0])
	}
}

func TestCSVStore_QuotesCommasInValues(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "booking.csv")
	s, err := bookings.NewCSVStore(path)
	if err != nil {
		t.Fatalf("NewCSVStore: %v", err)
	}

	rec := sampleRecord()
	rec.Pickup = "Flat 3, 12 Baker Street"
	if err := s.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	s.Close()

	rows := readAll(t, path)
	if rows[1][6] != "Flat 3, 12 Baker Street" {
		t.Errorf("pickup=%q, want comma preserved", rows[1][6])
	}
}
