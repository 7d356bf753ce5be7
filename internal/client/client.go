// Package client is the facade consumers read and write through: reads
// run under the endpoint policy table via the strategy engine, writes
// run with bounded retry and trigger pattern-based cache invalidation.
package client

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/l0p7/aquacache/internal/cache"
)

// RetryConfig bounds the exponential backoff wrapped around mutations.
// MaxAttempts counts the first try; zero disables retries entirely.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
}

// Config carries the collaborators a Client needs. Store, Engine,
// Resolver, and Invalidator are injected so tests and embedders can run
// isolated instances; there is no process-wide singleton.
type Config struct {
	Store       cache.Store
	Engine      *cache.Engine
	Resolver    *cache.Resolver
	Invalidator *cache.Invalidator
	Logger      *slog.Logger
	Retry       RetryConfig
}

// Client mediates between consumers and the remote API.
type Client struct {
	store       cache.Store
	engine      *cache.Engine
	invalidator *cache.Invalidator
	logger      *slog.Logger
	retry       RetryConfig

	mu       sync.RWMutex
	resolver *cache.Resolver
}

// New builds a client from its collaborators.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		store:       cfg.Store,
		engine:      cfg.Engine,
		invalidator: cfg.Invalidator,
		logger:      logger.With(slog.String("component", "client")),
		retry:       cfg.Retry,
		resolver:    cfg.Resolver,
	}
}

// Store exposes the underlying cache store for direct get/set/delete/
// clear/stats access.
func (c *Client) Store() cache.Store {
	return c.store
}

// Stats reports the store's current counters.
func (c *Client) Stats(ctx context.Context) (cache.Stats, error) {
	return c.store.Stats(ctx)
}

// Get reads path through the policy resolved for it. The fetch function
// is only invoked on the strategy's terms; concurrent reads of the same
// key share one fetch.
func (c *Client) Get(ctx context.Context, path string, params map[string]string, fetch cache.FetchFunc) (cache.Result, error) {
	key := cache.RequestKey(http.MethodGet, path, params)
	policy := c.currentResolver().Resolve(path)
	return c.engine.Execute(ctx, key, policy, fetch)
}

// Resolve exposes the policy applied to a path, mostly for diagnostics.
func (c *Client) Resolve(path string) cache.Policy {
	return c.currentResolver().Resolve(path)
}

// Post performs a create mutation, then invalidates related entries.
func (c *Client) Post(ctx context.Context, path string, fetch cache.FetchFunc) (any, error) {
	return c.mutate(ctx, path, fetch)
}

// Put performs an update mutation, then invalidates related entries.
func (c *Client) Put(ctx context.Context, path string, fetch cache.FetchFunc) (any, error) {
	return c.mutate(ctx, path, fetch)
}

// Delete performs a delete mutation, then invalidates related entries.
func (c *Client) Delete(ctx context.Context, path string, fetch cache.FetchFunc) (any, error) {
	return c.mutate(ctx, path, fetch)
}

// ReplacePolicies swaps the policy table, keeping the built-in default
// as fallback. Cached entries were written under the old TTLs and
// categories, so the store is cleared rather than left to serve data
// under policies that no longer exist.
func (c *Client) ReplacePolicies(ctx context.Context, policies []cache.Policy) {
	c.mu.Lock()
	c.resolver = cache.NewResolver(policies, cache.DefaultPolicy())
	c.mu.Unlock()
	if err := c.store.Clear(ctx, ""); err != nil {
		c.logger.Warn("cache clear after policy reload failed", slog.Any("error", err))
		return
	}
	c.logger.Info("policy table reloaded", slog.Int("policies", len(policies)))
}

// mutate runs the write with bounded retry and then purges related
// cache entries. The mutation's outcome never depends on invalidation:
// a purge failure is logged and dropped.
func (c *Client) mutate(ctx context.Context, path string, fetch cache.FetchFunc) (any, error) {
	value, err := c.withRetry(ctx, fetch)
	if err != nil {
		return nil, err
	}
	if _, invErr := c.invalidator.Invalidate(ctx, path); invErr != nil {
		c.logger.Warn("invalidation failed after mutation",
			slog.String("path", path), slog.Any("error", invErr))
	}
	return value, nil
}

// withRetry retries fetch with exponential backoff up to the configured
// attempt bound, surfacing the last error once the bound is reached.
func (c *Client) withRetry(ctx context.Context, fetch cache.FetchFunc) (any, error) {
	exponential := backoff.NewExponentialBackOff()
	if c.retry.InitialInterval > 0 {
		exponential.InitialInterval = c.retry.InitialInterval
	}
	var policy backoff.BackOff = exponential
	if c.retry.MaxAttempts > 1 {
		policy = backoff.WithMaxRetries(exponential, uint64(c.retry.MaxAttempts-1))
	} else {
		policy = &backoff.StopBackOff{}
	}
	policy = backoff.WithContext(policy, ctx)

	var value any
	err := backoff.Retry(func() error {
		result, fetchErr := fetch(ctx)
		if fetchErr != nil {
			return fetchErr
		}
		value = result
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (c *Client) currentResolver() *cache.Resolver {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolver
}
