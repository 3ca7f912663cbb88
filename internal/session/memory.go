package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultTTL           = 30 * time.Minute
	defaultSweepInterval = 1 * time.Minute
)

// MemoryOption is a functional option for configuring a [MemoryStore].
type MemoryOption func(*MemoryStore)

// WithTTL sets how long an idle session survives before the janitor evicts
// it. Default: 30m.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *MemoryStore) {
		m.ttl = ttl
	}
}

// WithSweepInterval sets how often the janitor scans for stale sessions.
// Default: 1m.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(m *MemoryStore) {
		m.sweep = d
	}
}

// MemoryStore is the process-local [Store] implementation. Sessions live in
// a map guarded by a mutex; a janitor goroutine (see [MemoryStore.Run])
// evicts sessions that have been idle longer than the TTL, covering calls
// that were abandoned without a terminating turn.
//
// Get returns the stored *Session directly. Callers mutate it under the
// dialogue controller's per-call lock and call Save to refresh the eviction
// deadline.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ttl   time.Duration
	sweep time.Duration
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore with the supplied options.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      defaultTTL,
		sweep:    defaultSweepInterval,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Create implements [Store].
func (m *MemoryStore) Create(_ context.Context, callID, phone string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[callID]; ok {
		return nil, ErrExists
	}
	s := New(callID, phone)
	m.sessions[callID] = s
	return s, nil
}

// Get implements [Store].
func (m *MemoryStore) Get(_ context.Context, callID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[callID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Save implements [Store]. For the in-memory store the session is already
// shared state, so Save only refreshes the activity timestamp.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.Touch()
	m.sessions[s.CallID] = s
	return nil
}

// Remove implements [Store].
func (m *MemoryStore) Remove(_ context.Context, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[callID]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, callID)
	return nil
}

// Count implements [Store].
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}

// Close implements [Store]. The janitor is stopped via the context passed to
// [MemoryStore.Run]; Close itself has nothing to release.
func (m *MemoryStore) Close() error {
	return nil
}

// Run blocks, periodically evicting stale sessions until ctx is cancelled.
// Intended to be started as a goroutine from main.
func (m *MemoryStore) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := m.EvictStale(time.Now().UTC()); n > 0 {
				slog.Info("evicted stale call sessions", "count", n, "ttl", m.ttl)
			}
		}
	}
}

// EvictStale removes every session whose last activity is older than the TTL
// relative to now and returns how many were removed. Exported for tests.
func (m *MemoryStore) EvictStale(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, s := range m.sessions {
		if now.Sub(s.LastActive) > m.ttl {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted
}
