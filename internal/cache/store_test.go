package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreSetGet(t *testing.T) {
	store := NewMemory(16, 10)
	ctx := context.Background()

	if err := store.Set(ctx, "get_/ponds", []string{"alpha"}, time.Minute, CategoryPonds); err != nil {
		t.Fatalf("set: %v", err)
	}

	entry, lookup, err := store.Get(ctx, "get_/ponds", false)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if lookup != LookupHit {
		t.Fatalf("expected hit, got %v", lookup)
	}
	values, ok := entry.Value.([]string)
	if !ok || len(values) != 1 || values[0] != "alpha" {
		t.Fatalf("unexpected value: %#v", entry.Value)
	}
	if entry.Category != CategoryPonds {
		t.Fatalf("unexpected category: %q", entry.Category)
	}

	_, lookup, err = store.Get(ctx, "absent", false)
	if err != nil {
		t.Fatalf("get absent: %v", err)
	}
	if lookup != LookupMiss {
		t.Fatalf("expected miss for absent key, got %v", lookup)
	}
}

func TestMemoryStoreExpiryAndStaleRead(t *testing.T) {
	store := NewMemory(16, 10)
	ctx := context.Background()

	if err := store.Set(ctx, "key", 42, 20*time.Millisecond, CategoryDashboard); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, lookup, _ := store.Get(ctx, "key", false); lookup != LookupMiss {
		t.Fatalf("expected miss past ttl, got %v", lookup)
	}
	entry, lookup, err := store.Get(ctx, "key", true)
	if err != nil {
		t.Fatalf("stale get: %v", err)
	}
	if lookup != LookupStale {
		t.Fatalf("expected stale lookup, got %v", lookup)
	}
	if entry.Value != 42 {
		t.Fatalf("unexpected stale value: %#v", entry.Value)
	}
}

func TestMemoryStoreStaleHorizonDropsEntry(t *testing.T) {
	store := NewMemory(16, 2)
	ctx := context.Background()

	if err := store.Set(ctx, "key", "v", 10*time.Millisecond, CategoryEvents); err != nil {
		t.Fatalf("set: %v", err)
	}
	// Past ttl*staleFactor even stale reads stop returning the entry.
	time.Sleep(30 * time.Millisecond)
	if _, lookup, _ := store.Get(ctx, "key", true); lookup != LookupMiss {
		t.Fatalf("expected miss past stale horizon, got %v", lookup)
	}
}

func TestMemoryStoreOverwriteWins(t *testing.T) {
	store := NewMemory(16, 10)
	ctx := context.Background()

	if err := store.Set(ctx, "key", "first", time.Minute, CategoryPonds); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "key", "second", time.Minute, CategoryEvents); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	entry, lookup, _ := store.Get(ctx, "key", false)
	if lookup != LookupHit || entry.Value != "second" {
		t.Fatalf("expected overwritten value, got %v %#v", lookup, entry.Value)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Entries != 1 {
		t.Fatalf("expected 1 entry, got %d", stats.Entries)
	}
	if stats.ByCategory[CategoryPonds] != 0 || stats.ByCategory[CategoryEvents] != 1 {
		t.Fatalf("category counts wrong: %#v", stats.ByCategory)
	}
}

func TestMemoryStoreDeleteMatching(t *testing.T) {
	store := NewMemory(16, 10)
	ctx := context.Background()

	seed := map[string]Category{
		"get_/ponds":         CategoryPonds,
		"get_/ponds/1":       CategoryPonds,
		"get_/dashboard":     CategoryDashboard,
		"get_/water-quality": CategoryWaterQuality,
	}
	for key, category := range seed {
		if err := store.Set(ctx, key, "v", time.Minute, category); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	purged, err := store.DeleteMatching(ctx, "_/ponds")
	if err != nil {
		t.Fatalf("delete matching: %v", err)
	}
	if purged != 2 {
		t.Fatalf("expected 2 purged, got %d", purged)
	}
	if _, lookup, _ := store.Get(ctx, "get_/water-quality", false); lookup != LookupHit {
		t.Fatalf("unrelated entry should survive")
	}

	if n, _ := store.DeleteMatching(ctx, ""); n != 0 {
		t.Fatalf("empty pattern must purge nothing, got %d", n)
	}
}

func TestMemoryStoreClearCategory(t *testing.T) {
	store := NewMemory(16, 10)
	ctx := context.Background()

	_ = store.Set(ctx, "a", 1, time.Minute, CategoryPonds)
	_ = store.Set(ctx, "b", 2, time.Minute, CategoryDashboard)
	_ = store.Set(ctx, "c", 3, time.Minute, CategoryPonds)

	if err := store.Clear(ctx, CategoryPonds); err != nil {
		t.Fatalf("clear category: %v", err)
	}
	if _, lookup, _ := store.Get(ctx, "a", false); lookup != LookupMiss {
		t.Fatalf("expected ponds entry cleared")
	}
	if _, lookup, _ := store.Get(ctx, "b", false); lookup != LookupHit {
		t.Fatalf("expected dashboard entry kept")
	}

	if err := store.Clear(ctx, ""); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	stats, _ := store.Stats(ctx)
	if stats.Entries != 0 {
		t.Fatalf("expected empty store, got %d entries", stats.Entries)
	}
}

func TestMemoryStoreStatsCounters(t *testing.T) {
	store := NewMemory(16, 10)
	ctx := context.Background()

	_ = store.Set(ctx, "key", "v", 10*time.Millisecond, CategoryPonds)
	_, _, _ = store.Get(ctx, "key", false)   // hit
	_, _, _ = store.Get(ctx, "absent", false) // miss
	time.Sleep(20 * time.Millisecond)
	_, _, _ = store.Get(ctx, "key", true) // stale hit

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Hits != 1 || stats.Misses != 1 || stats.StaleHits != 1 {
		t.Fatalf("unexpected counters: %+v", stats)
	}
}

func TestMemoryStoreCapEvictsOldest(t *testing.T) {
	store := NewMemory(2, 10)
	ctx := context.Background()

	_ = store.Set(ctx, "a", 1, time.Minute, CategoryPonds)
	_ = store.Set(ctx, "b", 2, time.Minute, CategoryPonds)
	_ = store.Set(ctx, "c", 3, time.Minute, CategoryPonds)

	if _, lookup, _ := store.Get(ctx, "a", false); lookup != LookupMiss {
		t.Fatalf("expected oldest entry evicted at cap")
	}
	stats, _ := store.Stats(ctx)
	if stats.Entries != 2 || stats.ByCategory[CategoryPonds] != 2 {
		t.Fatalf("category count should track eviction: %+v", stats)
	}
}
