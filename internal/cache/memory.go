package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCapacity    = 4096
	defaultStaleFactor = 10
)

// memoryStore is the in-process backend. Entries live in an LRU-capped
// map so a long session cannot grow the cache without bound; the cap is
// a hardening measure, correctness only depends on TTLs. Expired
// entries are kept until their stale horizon (ttl times staleFactor) so
// stale-allowed reads can still serve them, then dropped lazily on the
// next read that touches them.
type memoryStore struct {
	staleFactor int

	mu         sync.Mutex
	entries    *lru.Cache[string, Entry]
	byCategory map[Category]int64
	hits       uint64
	misses     uint64
	staleHits  uint64
}

// NewMemory builds the in-process store. Non-positive capacity or
// staleFactor fall back to defaults.
func NewMemory(capacity, staleFactor int) Store {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if staleFactor <= 0 {
		staleFactor = defaultStaleFactor
	}
	s := &memoryStore{
		staleFactor: staleFactor,
		byCategory:  make(map[Category]int64),
	}
	// The eviction callback fires for cap evictions, Remove, and Purge,
	// so the per-category counts stay aligned with every removal path.
	entries, err := lru.NewWithEvict[string, Entry](capacity, func(_ string, entry Entry) {
		s.byCategory[entry.Category]--
		if s.byCategory[entry.Category] <= 0 {
			delete(s.byCategory, entry.Category)
		}
	})
	if err != nil {
		// Unreachable: capacity is always positive here.
		panic(err)
	}
	s.entries = entries
	return s
}

func (s *memoryStore) Get(_ context.Context, key string, allowStale bool) (Entry, Lookup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries.Get(key)
	if !ok {
		s.misses++
		return Entry{}, LookupMiss, nil
	}
	now := time.Now()
	if entry.Fresh(now) {
		s.hits++
		return entry, LookupHit, nil
	}
	if now.After(entry.StoredAt.Add(entry.TTL * time.Duration(s.staleFactor))) {
		s.entries.Remove(key)
		s.misses++
		return Entry{}, LookupMiss, nil
	}
	if !allowStale {
		s.misses++
		return Entry{}, LookupMiss, nil
	}
	s.staleHits++
	return entry, LookupStale, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration, category Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.entries.Peek(key); ok {
		s.byCategory[prev.Category]--
		if s.byCategory[prev.Category] <= 0 {
			delete(s.byCategory, prev.Category)
		}
	}
	s.entries.Add(key, Entry{
		Key:      key,
		Value:    value,
		Category: category,
		StoredAt: time.Now().UTC(),
		TTL:      ttl,
	})
	s.byCategory[category]++
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Remove(key)
	return nil
}

func (s *memoryStore) DeleteMatching(_ context.Context, substr string) (int, error) {
	if substr == "" {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for _, key := range s.entries.Keys() {
		if strings.Contains(key, substr) {
			s.entries.Remove(key)
			purged++
		}
	}
	return purged, nil
}

func (s *memoryStore) Clear(_ context.Context, category Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if category == "" {
		s.entries.Purge()
		return nil
	}
	for _, key := range s.entries.Keys() {
		if entry, ok := s.entries.Peek(key); ok && entry.Category == category {
			s.entries.Remove(key)
		}
	}
	return nil
}

func (s *memoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byCategory := make(map[Category]int64, len(s.byCategory))
	for category, count := range s.byCategory {
		byCategory[category] = count
	}
	return Stats{
		Entries:    int64(s.entries.Len()),
		Hits:       s.hits,
		Misses:     s.misses,
		StaleHits:  s.staleHits,
		ByCategory: byCategory,
	}, nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}
