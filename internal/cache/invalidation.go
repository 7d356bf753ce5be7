package cache

import (
	"context"
	"log/slog"
	"strings"

	"github.com/l0p7/aquacache/internal/metrics"
)

// entityTable normalizes the plural REST collection segment of a
// mutated URL to its canonical singular entity type.
var entityTable = map[string]string{
	"ponds":            "pond",
	"seasons":          "season",
	"expenses":         "expense",
	"income":           "income",
	"events":           "event",
	"users":            "user",
	"water-quality":    "water_quality",
	"feed-inputs":      "feed_input",
	"growth-samplings": "growth_sampling",
	"inventory":        "inventory_item",
}

// DefaultInvalidationPatterns maps each entity type to the key
// substrings purged when a record of that type is mutated. Patterns are
// matched against the canonical request keys produced by RequestKey.
func DefaultInvalidationPatterns() map[string][]string {
	return map[string][]string{
		"pond":            {"_/ponds", "_/dashboard"},
		"season":          {"_/seasons", "_/dashboard"},
		"expense":         {"_/expenses", "_/dashboard"},
		"income":          {"_/income", "_/dashboard"},
		"event":           {"_/events", "_/ponds/"},
		"user":            {"_/users"},
		"water_quality":   {"_/water-quality", "_/ponds/", "_/dashboard"},
		"feed_input":      {"_/feed-inputs", "_/dashboard"},
		"growth_sampling": {"_/growth-samplings", "_/dashboard"},
		"inventory_item":  {"_/inventory", "_/dashboard"},
	}
}

// Invalidator purges cache entries related to a mutated URL. Each
// mutation costs O(entries times patterns), which stays cheap for a
// session-bounded cache.
type Invalidator struct {
	store    Store
	patterns map[string][]string
	logger   *slog.Logger
	metrics  *metrics.Recorder
}

// NewInvalidator builds an invalidator over the given pattern table.
// A nil table uses DefaultInvalidationPatterns.
func NewInvalidator(store Store, patterns map[string][]string, logger *slog.Logger, recorder *metrics.Recorder) *Invalidator {
	if patterns == nil {
		patterns = DefaultInvalidationPatterns()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{
		store:    store,
		patterns: patterns,
		logger:   logger.With(slog.String("component", "invalidator")),
		metrics:  recorder,
	}
}

// EntityType maps the first path segment of url to its canonical
// singular entity type, or "" when the segment is unrecognized.
func EntityType(url string) string {
	trimmed := strings.TrimPrefix(url, "/")
	if i := strings.IndexAny(trimmed, "/?"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return entityTable[strings.ToLower(trimmed)]
}

// Invalidate purges every store entry whose key contains any pattern
// registered for the mutated URL's entity type, returning the number of
// entries removed. An unmapped entity type is a logged no-op, never an
// error: the triggering mutation's outcome must not depend on
// invalidation.
func (i *Invalidator) Invalidate(ctx context.Context, url string) (int, error) {
	entity := EntityType(url)
	if entity == "" {
		i.logger.Debug("no invalidation mapping for url", slog.String("url", url))
		return 0, nil
	}
	purged := 0
	for _, pattern := range i.patterns[entity] {
		n, err := i.store.DeleteMatching(ctx, pattern)
		if err != nil {
			return purged, err
		}
		purged += n
	}
	i.metrics.ObserveInvalidation(entity, purged)
	i.logger.Debug("invalidated cache entries",
		slog.String("entity", entity), slog.String("url", url), slog.Int("purged", purged))
	return purged, nil
}
