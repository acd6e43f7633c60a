// cache/inmemory.go
package cache

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a thread-safe, in-memory implementation of Store.
// Expired entries are purged lazily once they fall out of the retention window.
type InMemoryStore struct {
	mu        sync.RWMutex
	data      map[string]Entry
	retention time.Duration
	now       Clock
}

// NewInMemoryStore creates a new in-memory store. retention is how long an
// entry stays readable through GetStale after it has expired; KeepForever
// disables purging.
func NewInMemoryStore(retention time.Duration) *InMemoryStore {
	return &InMemoryStore{
		data:      make(map[string]Entry),
		retention: retention,
		now:       time.Now,
	}
}

// WithClock replaces the store's time source.
func (s *InMemoryStore) WithClock(clock Clock) *InMemoryStore {
	s.now = clock
	return s
}

// Get retrieves an unexpired entry.
func (s *InMemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	e, ok, err := s.GetStale(ctx, key)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	if e.IsExpired(s.now()) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// GetStale retrieves an entry even if it has expired, as long as it is still retained.
func (s *InMemoryStore) GetStale(_ context.Context, key string) (Entry, bool, error) {
	if err := ValidateKey(key); err != nil {
		return Entry{}, false, err
	}

	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}

	if !retained(e, s.now(), s.retention) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have replaced it.
		if cur, stillThere := s.data[key]; stillThere && cur.StoredAt.Equal(e.StoredAt) {
			delete(s.data, key)
		}
		s.mu.Unlock()
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Set stores a value, replacing any prior entry.
func (s *InMemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = Entry{Value: stored, StoredAt: s.now(), TTL: ttl}
	return nil
}

// Delete removes a key.
func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// GetTimestamp returns when an unexpired entry was stored.
func (s *InMemoryStore) GetTimestamp(ctx context.Context, key string) (time.Time, bool, error) {
	e, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return e.StoredAt, true, nil
}

// Close is a no-op for the in-memory implementation.
func (s *InMemoryStore) Close() error {
	return nil
}

var _ Store = (*InMemoryStore)(nil)
