package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces session keys in a shared Redis instance.
const keyPrefix = "dispatch:call:"

// activeSetKey tracks live call IDs for Count. Entries are removed on
// Remove; sessions that expire via TTL without a terminating turn leave
// their ID behind until the next Create/Remove touches the set, so Count is
// advisory rather than exact.
const activeSetKey = "dispatch:calls:active"

// RedisStore is a [Store] backed by Redis, for deployments where the call
// gateway is load-balanced across processes. Sessions are stored as JSON
// under a per-call key with a native TTL standing in for the in-memory
// store's janitor.
//
// Unlike [MemoryStore], Get returns a private copy; mutations are only
// visible after Save.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to the Redis instance described by url (a
// redis:// connection string) and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("session: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session: ping redis: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Create implements [Store]. SET NX makes duplicate call-start events fail
// atomically even across processes.
func (r *RedisStore) Create(ctx context.Context, callID, phone string) (*Session, error) {
	s := New(callID, phone)
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("session: marshal: %w", err)
	}

	ok, err := r.client.SetNX(ctx, keyPrefix+callID, data, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("session: create %q: %w", callID, err)
	}
	if !ok {
		return nil, ErrExists
	}
	if err := r.client.SAdd(ctx, activeSetKey, callID).Err(); err != nil {
		return nil, fmt.Errorf("session: track %q: %w", callID, err)
	}
	return s, nil
}

// Get implements [Store].
func (r *RedisStore) Get(ctx context.Context, callID string) (*Session, error) {
	data, err := r.client.Get(ctx, keyPrefix+callID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: get %q: %w", callID, err)
	}

	s := &Session{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("session: decode %q: %w", callID, err)
	}
	return s, nil
}

// Save implements [Store]. The write refreshes the key's TTL, so an active
// call never expires mid-conversation.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	s.Touch()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+s.CallID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("session: save %q: %w", s.CallID, err)
	}
	return nil
}

// Remove implements [Store].
func (r *RedisStore) Remove(ctx context.Context, callID string) error {
	n, err := r.client.Del(ctx, keyPrefix+callID).Result()
	if err != nil {
		return fmt.Errorf("session: remove %q: %w", callID, err)
	}
	if err := r.client.SRem(ctx, activeSetKey, callID).Err(); err != nil {
		return fmt.Errorf("session: untrack %q: %w", callID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count implements [Store].
func (r *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := r.client.SCard(ctx, activeSetKey).Result()
	if err != nil {
		return 0, fmt.Errorf("session: count: %w", err)
	}
	return int(n), nil
}

// Close implements [Store].
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Ping reports whether the Redis backend is reachable, for readiness checks.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
