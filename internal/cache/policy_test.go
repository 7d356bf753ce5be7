package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testPolicies() []Policy {
	return []Policy{
		{Pattern: "/ponds", TTL: 5 * time.Minute, Strategy: StrategyStaleWhileRevalidate, Category: CategoryPonds},
		{Pattern: "/ponds/summary", TTL: time.Minute, Strategy: StrategyNetworkFirst, Category: CategoryDashboard},
		{Pattern: "/expenses", TTL: 10 * time.Minute, Strategy: StrategyCacheFirst, Category: CategoryExpenses},
	}
}

func TestResolverMostSpecificWins(t *testing.T) {
	resolver := NewResolver(testPolicies(), DefaultPolicy())

	// Both /ponds and /ponds/summary match; the longer pattern wins.
	policy := resolver.Resolve("/ponds/summary?season=7")
	require.Equal(t, "/ponds/summary", policy.Pattern)
	require.Equal(t, StrategyNetworkFirst, policy.Strategy)

	policy = resolver.Resolve("/ponds/12")
	require.Equal(t, "/ponds", policy.Pattern)
	require.Equal(t, StrategyStaleWhileRevalidate, policy.Strategy)
}

func TestResolverFallback(t *testing.T) {
	resolver := NewResolver(testPolicies(), DefaultPolicy())

	policy := resolver.Resolve("/something-unmapped")
	require.Empty(t, policy.Pattern)
	require.Equal(t, StrategyCacheFirst, policy.Strategy)
	require.Equal(t, 5*time.Minute, policy.TTL)
}

func TestResolverIgnoresLaterTableMutation(t *testing.T) {
	policies := testPolicies()
	resolver := NewResolver(policies, DefaultPolicy())
	policies[0].Strategy = StrategyNetworkFirst

	require.Equal(t, StrategyStaleWhileRevalidate, resolver.Resolve("/ponds").Strategy)
}

func TestResolverDeterministic(t *testing.T) {
	resolver := NewResolver(testPolicies(), DefaultPolicy())
	first := resolver.Resolve("/expenses?month=3")
	for range 10 {
		require.Equal(t, first, resolver.Resolve("/expenses?month=3"))
	}
}

func TestStrategyValid(t *testing.T) {
	require.True(t, StrategyCacheFirst.Valid())
	require.True(t, StrategyNetworkFirst.Valid())
	require.True(t, StrategyStaleWhileRevalidate.Valid())
	require.False(t, Strategy("write_through").Valid())
	require.False(t, Strategy("").Valid())
}
