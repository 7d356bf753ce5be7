package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	ktoml "github.com/knadh/koanf/parsers/toml"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting
// env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first
// contract before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Load assembles the effective snapshot using the documented precedence
// rules, then validates it. An external policies file, when configured,
// replaces the inline policy table so the watcher has a single source
// to re-read.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"server.cache.stalefactor":       "server.cache.staleFactor",
			"server.cache.defaultttl":        "server.cache.defaultTTL",
			"server.cache.policiesfile":      "server.cache.policiesFile",
			"server.cache.valkey.tls.cafile": "server.cache.valkey.tls.caFile",
			"server.upstream.baseurl":        "server.upstream.baseURL",
			"server.upstream.timeoutseconds": "server.upstream.timeoutSeconds",
			"server.retry.maxattempts":       "server.retry.maxAttempts",
			"server.retry.initialintervalms": "server.retry.initialIntervalMs",
		}
		transform := func(s string) string {
			// Double underscores signal a nested path
			// (SERVER__LISTEN__PORT -> server.listen.port).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			// Single underscores are removed so LISTEN_PORT collapses
			// into listenport when callers choose not to use double
			// underscores for object nesting.
			key = strings.ReplaceAll(key, "_", "")
			return strings.ToLower(key)
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if path := strings.TrimSpace(cfg.Server.Cache.PoliciesFile); path != "" {
		policies, err := LoadPolicies(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Policies = policies
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadPolicies reads an external policy table. The file carries a
// top-level "policies" list in the same shape as the inline table and
// may be yaml, json, or toml.
func LoadPolicies(path string) ([]PolicyConfig, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
		return nil, fmt.Errorf("config: load policies %s: %w", path, err)
	}
	var policies []PolicyConfig
	if err := k.Unmarshal("policies", &policies); err != nil {
		return nil, fmt.Errorf("config: unmarshal policies %s: %w", path, err)
	}
	if err := ValidatePolicies(policies); err != nil {
		return nil, err
	}
	return policies, nil
}

// parserFor picks the koanf parser from the file extension, defaulting
// to yaml.
func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return kjson.Parser()
	case ".toml":
		return ktoml.Parser()
	default:
		return kyaml.Parser()
	}
}

// structToMap converts DefaultConfig into a map for the koanf confmap
// provider.
func structToMap(cfg Config) map[string]any {
	policies := make([]map[string]any, 0, len(cfg.Policies))
	for _, policy := range cfg.Policies {
		policies = append(policies, map[string]any{
			"pattern":  policy.Pattern,
			"ttl":      policy.TTL,
			"strategy": policy.Strategy,
			"category": policy.Category,
		})
	}
	views := make([]map[string]any, 0, len(cfg.Views))
	for _, view := range cfg.Views {
		views = append(views, map[string]any{
			"name":         view.Name,
			"path":         view.Path,
			"keyField":     view.KeyField,
			"searchFields": view.SearchFields,
		})
	}
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":  cfg.Server.Logging.Level,
				"format": cfg.Server.Logging.Format,
			},
			"cache": map[string]any{
				"backend":      cfg.Server.Cache.Backend,
				"capacity":     cfg.Server.Cache.Capacity,
				"staleFactor":  cfg.Server.Cache.StaleFactor,
				"defaultTTL":   cfg.Server.Cache.DefaultTTL,
				"policiesFile": cfg.Server.Cache.PoliciesFile,
				"valkey": map[string]any{
					"address":  cfg.Server.Cache.Valkey.Address,
					"username": cfg.Server.Cache.Valkey.Username,
					"password": cfg.Server.Cache.Valkey.Password,
					"db":       cfg.Server.Cache.Valkey.DB,
					"tls": map[string]any{
						"enabled": cfg.Server.Cache.Valkey.TLS.Enabled,
						"caFile":  cfg.Server.Cache.Valkey.TLS.CAFile,
					},
				},
			},
			"upstream": map[string]any{
				"baseURL":        cfg.Server.Upstream.BaseURL,
				"timeoutSeconds": cfg.Server.Upstream.TimeoutSeconds,
			},
			"retry": map[string]any{
				"maxAttempts":       cfg.Server.Retry.MaxAttempts,
				"initialIntervalMs": cfg.Server.Retry.InitialIntervalMs,
			},
		},
		"policies": policies,
		"views":    views,
	}
}
