package cache

import (
	"context"
	"time"
)

// Category tags every entry so related records can be cleared together
// without touching unrelated data.
type Category string

const (
	CategoryPonds        Category = "ponds"
	CategoryDashboard    Category = "dashboard"
	CategoryWaterQuality Category = "water_quality"
	CategoryExpenses     Category = "expenses"
	CategoryEvents       Category = "events"
	CategoryFeed         Category = "feed"
	CategoryGrowth       Category = "growth"
	CategoryReference    Category = "reference"
)

// Entry is a single cached value. Values are stored as-is and must be
// treated as immutable by callers; mutating a returned value corrupts
// every later reader of the same key.
type Entry struct {
	Key      string        `json:"key"`
	Value    any           `json:"value"`
	Category Category      `json:"category"`
	StoredAt time.Time     `json:"storedAt"`
	TTL      time.Duration `json:"ttl"`
}

// FreshUntil reports the instant the entry stops being fresh.
func (e Entry) FreshUntil() time.Time {
	return e.StoredAt.Add(e.TTL)
}

// Fresh reports whether the entry is still within its TTL at now.
func (e Entry) Fresh(now time.Time) bool {
	return now.Before(e.FreshUntil())
}

// Lookup classifies the outcome of a Get.
type Lookup int

const (
	// LookupMiss means no usable entry was found.
	LookupMiss Lookup = iota
	// LookupHit means a fresh entry was returned.
	LookupHit
	// LookupStale means an expired entry was returned because the
	// caller opted into stale reads.
	LookupStale
)

// Stats is a point-in-time snapshot of store activity.
type Stats struct {
	Entries    int64              `json:"entries"`
	Hits       uint64             `json:"hits"`
	Misses     uint64             `json:"misses"`
	StaleHits  uint64             `json:"staleHits"`
	ByCategory map[Category]int64 `json:"byCategory"`
}

// Store is the TTL key/value surface every read strategy sits on.
// Implementations never mutate stored values; all writes go through Set
// and all removal goes through Delete, DeleteMatching, or Clear.
type Store interface {
	// Get returns the entry for key. Without allowStale an expired
	// entry reports LookupMiss; with allowStale it is returned and
	// flagged LookupStale. Entries held past their stale horizon are
	// dropped lazily on read.
	Get(ctx context.Context, key string, allowStale bool) (Entry, Lookup, error)
	// Set overwrites any previous entry under key. The TTL is fixed at
	// write time from the caller's policy.
	Set(ctx context.Context, key string, value any, ttl time.Duration, category Category) error
	// Delete removes a single key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
	// DeleteMatching removes every entry whose key contains substr and
	// reports how many were purged.
	DeleteMatching(ctx context.Context, substr string) (int, error)
	// Clear drops every entry tagged with category, or everything when
	// category is empty.
	Clear(ctx context.Context, category Category) error
	Stats(ctx context.Context) (Stats, error)
	Close(ctx context.Context) error
}
