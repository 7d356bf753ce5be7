package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/l0p7/aquacache/internal/cache"
)

// Config holds every server-level option plus the declarative policy,
// invalidation, and view tables.
type Config struct {
	Server ServerConfig `koanf:"server"`

	// Policies is the ordered endpoint policy table. Exactly one policy
	// applies to any request: the longest matching pattern, or the
	// built-in default when nothing matches.
	Policies []PolicyConfig `koanf:"policies"`

	// Invalidation maps entity types to the key substrings purged when
	// a record of that type is mutated. Empty means the built-in table.
	Invalidation map[string][]string `koanf:"invalidation"`

	// Views declares the indexed list views the daemon maintains.
	Views []ViewConfig `koanf:"views"`
}

// ServerConfig collects the daemon bootstrap knobs.
type ServerConfig struct {
	Listen   ListenConfig   `koanf:"listen"`
	Logging  LoggingConfig  `koanf:"logging"`
	Cache    CacheConfig    `koanf:"cache"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Retry    RetryConfig    `koanf:"retry"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CacheConfig selects and sizes the cache store backend.
type CacheConfig struct {
	Backend      string       `koanf:"backend"`
	Capacity     int          `koanf:"capacity"`
	StaleFactor  int          `koanf:"staleFactor"`
	DefaultTTL   string       `koanf:"defaultTTL"`
	PoliciesFile string       `koanf:"policiesFile"`
	Valkey       ValkeyConfig `koanf:"valkey"`
}

// ValkeyConfig carries connection details for the valkey backend.
type ValkeyConfig struct {
	Address  string    `koanf:"address"`
	Username string    `koanf:"username"`
	Password string    `koanf:"password"`
	DB       int       `koanf:"db"`
	TLS      TLSConfig `koanf:"tls"`
}

// TLSConfig toggles TLS for the valkey connection.
type TLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// UpstreamConfig points the daemon at the records API it fronts.
type UpstreamConfig struct {
	BaseURL        string `koanf:"baseURL"`
	TimeoutSeconds int    `koanf:"timeoutSeconds"`
}

// RetryConfig bounds the exponential backoff wrapped around mutations.
type RetryConfig struct {
	MaxAttempts       int `koanf:"maxAttempts"`
	InitialIntervalMs int `koanf:"initialIntervalMs"`
}

// PolicyConfig is one row of the endpoint policy table.
type PolicyConfig struct {
	Pattern  string `koanf:"pattern"`
	TTL      string `koanf:"ttl"`
	Strategy string `koanf:"strategy"`
	Category string `koanf:"category"`
}

// ViewConfig declares one indexed list view: which list endpoint feeds
// it, which field keys its records, and which fields are searchable.
type ViewConfig struct {
	Name         string   `koanf:"name"`
	Path         string   `koanf:"path"`
	KeyField     string   `koanf:"keyField"`
	SearchFields []string `koanf:"searchFields"`
}

// DefaultConfig returns the baseline the loader layers files and
// environment on top of. The policy table mirrors the record types of
// the upstream operations API.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8880,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
			Cache: CacheConfig{
				Backend:     "memory",
				Capacity:    4096,
				StaleFactor: 10,
				DefaultTTL:  "5m",
			},
			Upstream: UpstreamConfig{
				TimeoutSeconds: 15,
			},
			Retry: RetryConfig{
				MaxAttempts:       3,
				InitialIntervalMs: 200,
			},
		},
		Policies: []PolicyConfig{
			{Pattern: "/ponds", TTL: "5m", Strategy: "stale_while_revalidate", Category: "ponds"},
			{Pattern: "/dashboard", TTL: "1m", Strategy: "network_first", Category: "dashboard"},
			{Pattern: "/water-quality", TTL: "2m", Strategy: "cache_first", Category: "water_quality"},
			{Pattern: "/expenses", TTL: "10m", Strategy: "cache_first", Category: "expenses"},
			{Pattern: "/income", TTL: "10m", Strategy: "cache_first", Category: "expenses"},
			{Pattern: "/events", TTL: "5m", Strategy: "stale_while_revalidate", Category: "events"},
			{Pattern: "/feed-inputs", TTL: "10m", Strategy: "cache_first", Category: "feed"},
			{Pattern: "/growth-samplings", TTL: "10m", Strategy: "cache_first", Category: "growth"},
			{Pattern: "/seasons", TTL: "30m", Strategy: "cache_first", Category: "reference"},
			{Pattern: "/users", TTL: "30m", Strategy: "cache_first", Category: "reference"},
		},
		Views: []ViewConfig{
			{Name: "ponds", Path: "/ponds", KeyField: "id", SearchFields: []string{"name", "status"}},
			{Name: "expenses", Path: "/expenses", KeyField: "id", SearchFields: []string{"description", "category"}},
		},
	}
}

// Validate enforces the invariants that keep the runtime predictable
// before serving traffic. A malformed policy or invalidation table is
// fatal at startup, never silently tolerated.
func (c *Config) Validate() error {
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen port %d out of range", c.Server.Listen.Port)
	}

	backend := strings.ToLower(strings.TrimSpace(c.Server.Cache.Backend))
	switch backend {
	case "", "memory":
	case "valkey":
		if strings.TrimSpace(c.Server.Cache.Valkey.Address) == "" {
			return errors.New("config: valkey backend requires an address")
		}
	default:
		return fmt.Errorf("config: unsupported cache backend %q", c.Server.Cache.Backend)
	}
	if c.Server.Cache.Capacity < 0 {
		return fmt.Errorf("config: cache capacity %d must not be negative", c.Server.Cache.Capacity)
	}
	if c.Server.Cache.StaleFactor < 0 {
		return fmt.Errorf("config: cache staleFactor %d must not be negative", c.Server.Cache.StaleFactor)
	}
	if c.Server.Cache.DefaultTTL != "" {
		if _, err := time.ParseDuration(c.Server.Cache.DefaultTTL); err != nil {
			return fmt.Errorf("config: cache defaultTTL: %w", err)
		}
	}

	if base := strings.TrimSpace(c.Server.Upstream.BaseURL); base != "" {
		parsed, err := url.Parse(base)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("config: upstream baseURL %q is not an absolute URL", base)
		}
	}
	if c.Server.Retry.MaxAttempts < 0 {
		return fmt.Errorf("config: retry maxAttempts %d must not be negative", c.Server.Retry.MaxAttempts)
	}

	if err := ValidatePolicies(c.Policies); err != nil {
		return err
	}

	for entity, patterns := range c.Invalidation {
		if strings.TrimSpace(entity) == "" {
			return errors.New("config: invalidation entity type must not be empty")
		}
		if len(patterns) == 0 {
			return fmt.Errorf("config: invalidation entity %q has no patterns", entity)
		}
		for _, pattern := range patterns {
			if strings.TrimSpace(pattern) == "" {
				return fmt.Errorf("config: invalidation entity %q has an empty pattern", entity)
			}
		}
	}

	seen := make(map[string]struct{}, len(c.Views))
	for _, view := range c.Views {
		if strings.TrimSpace(view.Name) == "" {
			return errors.New("config: view name must not be empty")
		}
		if _, ok := seen[view.Name]; ok {
			return fmt.Errorf("config: duplicate view %q", view.Name)
		}
		seen[view.Name] = struct{}{}
		if strings.TrimSpace(view.Path) == "" {
			return fmt.Errorf("config: view %q needs a path", view.Name)
		}
		if strings.TrimSpace(view.KeyField) == "" {
			return fmt.Errorf("config: view %q needs a keyField", view.Name)
		}
	}

	return nil
}

// ValidatePolicies checks a policy table in isolation so the watcher
// can reject a malformed reload without restarting the daemon.
func ValidatePolicies(policies []PolicyConfig) error {
	for i, policy := range policies {
		if strings.TrimSpace(policy.Pattern) == "" {
			return fmt.Errorf("config: policy %d has an empty pattern", i)
		}
		ttl, err := time.ParseDuration(policy.TTL)
		if err != nil {
			return fmt.Errorf("config: policy %q ttl: %w", policy.Pattern, err)
		}
		if ttl <= 0 {
			return fmt.Errorf("config: policy %q ttl must be positive", policy.Pattern)
		}
		if !cache.Strategy(policy.Strategy).Valid() {
			return fmt.Errorf("config: policy %q has unknown strategy %q", policy.Pattern, policy.Strategy)
		}
		if strings.TrimSpace(policy.Category) == "" {
			return fmt.Errorf("config: policy %q needs a category", policy.Pattern)
		}
	}
	return nil
}

// CachePolicies converts the validated table into resolver policies.
func (c *Config) CachePolicies() []cache.Policy {
	return PoliciesFromConfig(c.Policies)
}

// PoliciesFromConfig converts policy rows whose durations have already
// been validated; rows that fail to parse are skipped.
func PoliciesFromConfig(policies []PolicyConfig) []cache.Policy {
	out := make([]cache.Policy, 0, len(policies))
	for _, policy := range policies {
		ttl, err := time.ParseDuration(policy.TTL)
		if err != nil || ttl <= 0 {
			continue
		}
		out = append(out, cache.Policy{
			Pattern:  policy.Pattern,
			TTL:      ttl,
			Strategy: cache.Strategy(policy.Strategy),
			Category: cache.Category(policy.Category),
		})
	}
	return out
}

// InvalidationPatterns returns the configured table, falling back to
// the built-in defaults when none is declared.
func (c *Config) InvalidationPatterns() map[string][]string {
	if len(c.Invalidation) == 0 {
		return cache.DefaultInvalidationPatterns()
	}
	return c.Invalidation
}

// DefaultTTL parses the configured default TTL, falling back to the
// resolver default when unset.
func (c CacheConfig) TTL() time.Duration {
	if c.DefaultTTL == "" {
		return cache.DefaultPolicy().TTL
	}
	ttl, err := time.ParseDuration(c.DefaultTTL)
	if err != nil || ttl <= 0 {
		return cache.DefaultPolicy().TTL
	}
	return ttl
}
