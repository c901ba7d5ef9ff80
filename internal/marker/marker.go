// Package marker provides storage backends for origin markers: the tags a
// human-edit write-back attaches to structured-model changes so the sync
// coordinator can recognize its own writes and break update cycles.
// Markers expire after a short TTL; a marker only needs to outlive the
// notification round-trip it guards.
package marker

import (
	"context"
	"sync"
	"time"
)

// Store records issued markers and answers whether a notification's origin
// marker was issued by this process.
type Store interface {
	Record(ctx context.Context, marker string) error
	Seen(ctx context.Context, marker string) (bool, error)
	Close() error
}

// MemoryStore is the in-process fallback used when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryStore) Record(_ context.Context, marker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	s.entries[marker] = s.now().Add(s.ttl)
	return nil
}

func (s *MemoryStore) Seen(_ context.Context, marker string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.entries[marker]
	if !ok {
		return false, nil
	}
	if s.now().After(expiry) {
		delete(s.entries, marker)
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) sweep() {
	now := s.now()
	for marker, expiry := range s.entries {
		if now.After(expiry) {
			delete(s.entries, marker)
		}
	}
}
