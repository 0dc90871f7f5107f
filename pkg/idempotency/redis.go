// Package idempotency drops duplicate deliveries of externally sourced events
package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers delivery keys in two phases. Seen marks a key as in
// flight for a short TTL and reports whether it was already marked; Done
// keeps a processed key for the full TTL. A key whose delivery never
// finishes expires with the in-flight TTL, so the sender's redelivery is
// processed. Forget drops a key at once after a failed delivery.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Done(ctx context.Context, key string) error
	Forget(ctx context.Context, key string) error
}

const (
	markerInFlight = "processing"
	markerDone     = "done"
)

// Store is a Redis backed Deduper
type Store struct {
	rdb         redis.Cmdable
	ttl         time.Duration
	inFlightTTL time.Duration
}

// NewStore creates a Redis backed store
func NewStore(rdb redis.Cmdable, ttl, inFlightTTL time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl, inFlightTTL: inFlightTTL}
}

// Key namespaces a gateway event id
func Key(source, eventID string) string {
	return fmt.Sprintf("idem:%s:%s", source, eventID)
}

func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, markerInFlight, s.inFlightTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record idempotency key: %w", err)
	}
	return !ok, nil
}

func (s *Store) Done(ctx context.Context, key string) error {
	if err := s.rdb.Set(ctx, key, markerDone, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}

func (s *Store) Forget(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete idempotency key: %w", err)
	}
	return nil
}

// MemoryStore is a process-local Deduper for single instance deployments.
// Expired keys are swept on write at most once per in-flight TTL.
type MemoryStore struct {
	mu          sync.Mutex
	ttl         time.Duration
	inFlightTTL time.Duration
	seen        map[string]time.Time
	nextSweep   time.Time
	now         func() time.Time
}

// NewMemoryStore creates an in-process store
func NewMemoryStore(ttl, inFlightTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:         ttl,
		inFlightTTL: inFlightTTL,
		seen:        make(map[string]time.Time),
		now:         time.Now,
	}
}

// SetClock overrides the store's notion of now
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Len returns the number of keys currently held, expired or not
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

func (m *MemoryStore) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)
	if expires, ok := m.seen[key]; ok && now.Before(expires) {
		return true, nil
	}
	m.seen[key] = now.Add(m.inFlightTTL)
	return false, nil
}

func (m *MemoryStore) Done(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[key] = m.now().Add(m.ttl)
	return nil
}

func (m *MemoryStore) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, key)
	return nil
}

func (m *MemoryStore) sweep(now time.Time) {
	if now.Before(m.nextSweep) {
		return
	}
	for key, expires := range m.seen {
		if !now.Before(expires) {
			delete(m.seen, key)
		}
	}
	m.nextSweep = now.Add(m.inFlightTTL)
}
