package bookings

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/ridelinehq/dispatchd/internal/booking"
)

// CSVStore appends confirmed bookings to a local CSV file. The header row is
// written when the file is first created; rows follow [booking.FieldNames]
// order.
type CSVStore struct {
	path string

	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

var _ Store = (*CSVStore)(nil)

// NewCSVStore opens (or creates) the booking file at path. A header row is
// written only when the file is new, so restarting the server keeps
// appending to the same file.
func NewCSVStore(path string) (*CSVStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("bookings: open %q: %w", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bookings: stat %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if st.Size() == 0 {
		if err := w.Write(booking.FieldNames); err != nil {
			f.Close()
			return nil, fmt.Errorf("bookings: write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("bookings: flush header: %w", err)
		}
	}

	return &CSVStore{path: path, f: f, w: w}, nil
}

// Append implements [Store]. The row is flushed and synced before returning
// so a crash immediately after cannot lose a booking the caller was told
// about.
func (s *CSVStore) Append(_ context.Context, rec booking.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.w.Write(rec.Values()); err != nil {
		return fmt.Errorf("bookings: write row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("bookings: flush row: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("bookings: sync %q: %w", s.path, err)
	}
	return nil
}

// Close implements [Store].
func (s *CSVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return fmt.Errorf("bookings: flush on close: %w", err)
	}
	return s.f.Close()
}
