package session

import "context"

// Store is the session lifecycle contract. Implementations must make each
// method atomic per call ID but are not required to serialize sequences of
// calls — the dialogue controller holds a per-call lock around its
// read-modify-write turn cycle.
type Store interface {
	// Create allocates a new session for callID with phone pre-filled.
	// Returns [ErrExists] if a session for callID is already present.
	Create(ctx context.Context, callID, phone string) (*Session, error)

	// Get returns the session for callID or [ErrNotFound].
	Get(ctx context.Context, callID string) (*Session, error)

	// Save persists the current state of s and refreshes its eviction
	// deadline.
	Save(ctx context.Context, s *Session) error

	// Remove deletes the session for callID. Removing an absent session
	// returns [ErrNotFound].
	Remove(ctx context.Context, callID string) error

	// Count reports the number of live sessions, for health and metrics.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
