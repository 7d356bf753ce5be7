package cache

import (
	"sort"
	"strings"
	"time"
)

// Strategy names a read policy the engine knows how to execute.
type Strategy string

const (
	// StrategyCacheFirst serves a fresh entry when present and only
	// fetches on a miss.
	StrategyCacheFirst Strategy = "cache_first"
	// StrategyNetworkFirst always fetches and falls back to a cached
	// entry when the fetch fails.
	StrategyNetworkFirst Strategy = "network_first"
	// StrategyStaleWhileRevalidate serves any existing entry
	// immediately and refreshes stale ones in the background.
	StrategyStaleWhileRevalidate Strategy = "stale_while_revalidate"
)

// Valid reports whether s is one of the known strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyCacheFirst, StrategyNetworkFirst, StrategyStaleWhileRevalidate:
		return true
	}
	return false
}

// Policy binds a URL pattern to the TTL, read strategy, and category
// applied to requests it matches.
type Policy struct {
	Pattern  string
	TTL      time.Duration
	Strategy Strategy
	Category Category
}

// DefaultPolicy applies when no table entry matches a request.
func DefaultPolicy() Policy {
	return Policy{
		TTL:      5 * time.Minute,
		Strategy: StrategyCacheFirst,
		Category: CategoryReference,
	}
}

// Resolver maps request URLs to policies by substring match. The table
// is held sorted by descending pattern length so the most specific
// match always wins; ties keep their declared order. Resolution is a
// pure function of the table and the URL.
type Resolver struct {
	policies []Policy
	fallback Policy
}

// NewResolver builds a resolver over the given table. The slice is
// copied, so later mutation by the caller cannot change resolution.
func NewResolver(policies []Policy, fallback Policy) *Resolver {
	table := make([]Policy, len(policies))
	copy(table, policies)
	sort.SliceStable(table, func(i, j int) bool {
		return len(table[i].Pattern) > len(table[j].Pattern)
	})
	return &Resolver{policies: table, fallback: fallback}
}

// Resolve returns the policy for url. Exactly one policy applies to any
// request: the longest matching pattern, or the fallback.
func (r *Resolver) Resolve(url string) Policy {
	for _, policy := range r.policies {
		if policy.Pattern != "" && strings.Contains(url, policy.Pattern) {
			return policy
		}
	}
	return r.fallback
}
