package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/l0p7/aquacache/internal/cache"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("").Load(context.Background())
	require.NoError(t, err)

	require.Equal(t, 8880, cfg.Server.Listen.Port)
	require.Equal(t, "memory", cfg.Server.Cache.Backend)
	require.Equal(t, 4096, cfg.Server.Cache.Capacity)
	require.Equal(t, 10, cfg.Server.Cache.StaleFactor)
	require.Equal(t, 3, cfg.Server.Retry.MaxAttempts)
	require.NotEmpty(t, cfg.Policies)
	require.NotEmpty(t, cfg.Views)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  listen:
    port: 9000
  cache:
    backend: memory
    capacity: 128
`)

	cfg, err := NewLoader("", path).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Server.Listen.Port)
	require.Equal(t, 128, cfg.Server.Cache.Capacity)
	// Untouched keys keep their defaults.
	require.Equal(t, 10, cfg.Server.Cache.StaleFactor)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  listen:
    port: 9000
`)
	t.Setenv("AQUACACHE_SERVER__LISTEN__PORT", "9100")
	t.Setenv("AQUACACHE_SERVER__CACHE__STALEFACTOR", "4")
	t.Setenv("AQUACACHE_SERVER__RETRY__MAXATTEMPTS", "5")

	cfg, err := NewLoader("AQUACACHE", path).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Server.Listen.Port)
	require.Equal(t, 4, cfg.Server.Cache.StaleFactor)
	require.Equal(t, 5, cfg.Server.Retry.MaxAttempts)
}

func TestLoadJSONFile(t *testing.T) {
	path := writeFile(t, "config.json", `{"server":{"listen":{"port":9001}}}`)

	cfg, err := NewLoader("", path).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 9001, cfg.Server.Listen.Port)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := NewLoader("", filepath.Join(t.TempDir(), "absent.yaml")).Load(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestLoadRejectsInvalidPolicy(t *testing.T) {
	path := writeFile(t, "config.yaml", `
policies:
  - pattern: /ponds
    ttl: 5m
    strategy: write_through
    category: ponds
`)

	_, err := NewLoader("", path).Load(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "strategy")
}

func TestLoadExternalPoliciesFileReplacesInline(t *testing.T) {
	policiesPath := writeFile(t, "policies.yaml", `
policies:
  - pattern: /only
    ttl: 1m
    strategy: cache_first
    category: reference
`)
	cfgPath := writeFile(t, "config.yaml", `
server:
  cache:
    policiesFile: `+policiesPath+`
`)

	cfg, err := NewLoader("", cfgPath).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, cfg.Policies, 1)
	require.Equal(t, "/only", cfg.Policies[0].Pattern)
}

func TestLoadPoliciesTOML(t *testing.T) {
	path := writeFile(t, "policies.toml", `
[[policies]]
pattern = "/ponds"
ttl = "5m"
strategy = "stale_while_revalidate"
category = "ponds"
`)

	policies, err := LoadPolicies(path)
	require.NoError(t, err)
	require.Len(t, policies, 1)
	require.Equal(t, "stale_while_revalidate", policies[0].Strategy)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Listen.Port = 0 }},
		{"unknown backend", func(c *Config) { c.Server.Cache.Backend = "memcached" }},
		{"valkey without address", func(c *Config) { c.Server.Cache.Backend = "valkey" }},
		{"negative capacity", func(c *Config) { c.Server.Cache.Capacity = -1 }},
		{"relative upstream url", func(c *Config) { c.Server.Upstream.BaseURL = "/api" }},
		{"empty policy pattern", func(c *Config) { c.Policies[0].Pattern = " " }},
		{"non positive ttl", func(c *Config) { c.Policies[0].TTL = "0s" }},
		{"empty invalidation pattern", func(c *Config) { c.Invalidation = map[string][]string{"pond": {""}} }},
		{"duplicate view", func(c *Config) { c.Views = append(c.Views, c.Views[0]) }},
		{"view without key field", func(c *Config) { c.Views[0].KeyField = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestPoliciesFromConfig(t *testing.T) {
	policies := PoliciesFromConfig([]PolicyConfig{
		{Pattern: "/ponds", TTL: "5m", Strategy: "cache_first", Category: "ponds"},
		{Pattern: "/broken", TTL: "nope", Strategy: "cache_first", Category: "ponds"},
	})
	require.Len(t, policies, 1)
	require.Equal(t, "/ponds", policies[0].Pattern)
	require.Equal(t, 5*time.Minute, policies[0].TTL)
	require.Equal(t, cache.StrategyCacheFirst, policies[0].Strategy)
}

func TestInvalidationPatternsFallsBackToDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, cache.DefaultInvalidationPatterns(), cfg.InvalidationPatterns())

	cfg.Invalidation = map[string][]string{"pond": {"_/custom"}}
	require.Equal(t, cfg.Invalidation, cfg.InvalidationPatterns())
}

func TestCacheConfigTTL(t *testing.T) {
	require.Equal(t, 2*time.Minute, CacheConfig{DefaultTTL: "2m"}.TTL())
	require.Equal(t, cache.DefaultPolicy().TTL, CacheConfig{}.TTL())
	require.Equal(t, cache.DefaultPolicy().TTL, CacheConfig{DefaultTTL: "garbage"}.TTL())
}
