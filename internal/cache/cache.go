package cache

import (
	"context"
	"sync"
	"time"
)

// TimestampStore remembers the last time something happened for a key.
type TimestampStore interface {
	Get(ctx context.Context, key string) (time.Time, bool, error)
	Set(ctx context.Context, key string, at time.Time, ttl time.Duration) error
}

type memoryEntry struct {
	at        time.Time
	expiresAt time.Time
}

// MemoryTimestampStore is process local. Expiry is measured against the
// stored timestamp so tests driving a fake clock see consistent results.
type MemoryTimestampStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryTimestampStore() *MemoryTimestampStore {
	return &MemoryTimestampStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryTimestampStore) Get(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return entry.at, true, nil
}

func (s *MemoryTimestampStore) Set(_ context.Context, key string, at time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{at: at}
	if ttl > 0 {
		entry.expiresAt = at.Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

// Prune drops entries whose ttl elapsed before now.
func (s *MemoryTimestampStore) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryTimestampStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
