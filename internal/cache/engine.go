package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/l0p7/aquacache/internal/metrics"
)

// FetchFunc produces the value for a cache key, typically by calling
// the remote API. It must return an error on transport or HTTP-status
// failure and already-decoded data on success.
type FetchFunc func(ctx context.Context) (any, error)

// Result is what a strategy read hands back to the caller: the value,
// whether it was past its TTL, and whether it came from the store
// rather than a fetch issued for this call.
type Result struct {
	Value     any
	Stale     bool
	FromCache bool
}

// Engine executes read strategies against a Store and a caller-supplied
// fetch function. Concurrent reads for the same key share a single
// in-flight fetch through the deduplicator, so N callers racing on an
// uncached key cost exactly one network call.
type Engine struct {
	store   Store
	dedupe  Deduplicator
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// NewEngine wires a strategy engine over the given store.
func NewEngine(store Store, logger *slog.Logger, recorder *metrics.Recorder) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		logger:  logger.With(slog.String("component", "engine")),
		metrics: recorder,
	}
}

// Execute performs one read of key under the policy's strategy. Fetch
// errors are propagated unmodified when no cached fallback exists;
// whenever any prior entry is available the strategies degrade to it
// instead of failing.
func (e *Engine) Execute(ctx context.Context, key string, policy Policy, fetch FetchFunc) (Result, error) {
	start := time.Now()
	result, err := e.execute(ctx, key, policy, fetch)
	e.metrics.ObserveStrategy(string(policy.Strategy), outcomeLabel(result, err), time.Since(start))
	return result, err
}

func (e *Engine) execute(ctx context.Context, key string, policy Policy, fetch FetchFunc) (Result, error) {
	switch policy.Strategy {
	case StrategyNetworkFirst:
		return e.networkFirst(ctx, key, policy, fetch)
	case StrategyStaleWhileRevalidate:
		return e.staleWhileRevalidate(ctx, key, policy, fetch)
	default:
		return e.cacheFirst(ctx, key, policy, fetch)
	}
}

// cacheFirst serves a fresh entry when present and fetches otherwise.
// A failed fetch falls back to a stale entry when one survives.
func (e *Engine) cacheFirst(ctx context.Context, key string, policy Policy, fetch FetchFunc) (Result, error) {
	if entry, lookup := e.lookup(ctx, key, policy, false); lookup == LookupHit {
		return Result{Value: entry.Value, FromCache: true}, nil
	}
	value, err := e.fetch(ctx, key, policy, fetch)
	if err == nil {
		return Result{Value: value}, nil
	}
	if entry, lookup := e.lookup(ctx, key, policy, true); lookup != LookupMiss {
		e.logger.Warn("fetch failed, serving cached entry",
			slog.String("key", key), slog.Any("error", err))
		return Result{Value: entry.Value, Stale: lookup == LookupStale, FromCache: true}, nil
	}
	return Result{}, err
}

// networkFirst always fetches and only consults the store when the
// fetch fails.
func (e *Engine) networkFirst(ctx context.Context, key string, policy Policy, fetch FetchFunc) (Result, error) {
	value, err := e.fetch(ctx, key, policy, fetch)
	if err == nil {
		return Result{Value: value}, nil
	}
	if entry, lookup := e.lookup(ctx, key, policy, true); lookup != LookupMiss {
		e.logger.Warn("fetch failed, serving cached entry",
			slog.String("key", key), slog.Any("error", err))
		return Result{Value: entry.Value, Stale: lookup == LookupStale, FromCache: true}, nil
	}
	return Result{}, err
}

// staleWhileRevalidate serves whatever entry exists immediately. A
// stale entry additionally schedules a detached background refresh
// whose failure is logged and never surfaced to the caller. With no
// entry at all this intentionally degenerates to a synchronous
// cache-first fetch; there is no async-on-first-read mode.
func (e *Engine) staleWhileRevalidate(ctx context.Context, key string, policy Policy, fetch FetchFunc) (Result, error) {
	entry, lookup := e.lookup(ctx, key, policy, true)
	switch lookup {
	case LookupHit:
		return Result{Value: entry.Value, FromCache: true}, nil
	case LookupStale:
		e.refresh(ctx, key, policy, fetch)
		return Result{Value: entry.Value, Stale: true, FromCache: true}, nil
	}
	value, err := e.fetch(ctx, key, policy, fetch)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: value}, nil
}

// fetch runs the fetch function through the deduplicator and stores the
// result. The producer runs on a context detached from the caller so an
// abandoned read still completes and populates the store for whoever
// asks next.
func (e *Engine) fetch(ctx context.Context, key string, policy Policy, fetch FetchFunc) (any, error) {
	detached := context.WithoutCancel(ctx)
	value, shared, err := e.dedupe.Do(ctx, key, func() (any, error) {
		value, err := fetch(detached)
		if err != nil {
			return nil, err
		}
		if storeErr := e.store.Set(detached, key, value, policy.TTL, policy.Category); storeErr != nil {
			e.logger.Warn("cache store failed",
				slog.String("key", key), slog.Any("error", storeErr))
		} else {
			e.metrics.ObserveStore(string(policy.Category))
		}
		return value, nil
	})
	if shared {
		e.metrics.ObserveDedupeShared()
	}
	return value, err
}

// refresh revalidates a stale entry on a detached goroutine. Errors are
// logged and dropped; there is no return channel to the caller that
// observed the stale value.
func (e *Engine) refresh(ctx context.Context, key string, policy Policy, fetch FetchFunc) {
	detached := context.WithoutCancel(ctx)
	go func() {
		if _, err := e.fetch(detached, key, policy, fetch); err != nil {
			e.logger.Warn("background refresh failed",
				slog.String("key", key), slog.Any("error", err))
			e.metrics.ObserveRefresh(metrics.RefreshError)
			return
		}
		e.metrics.ObserveRefresh(metrics.RefreshOK)
	}()
}

func (e *Engine) lookup(ctx context.Context, key string, policy Policy, allowStale bool) (Entry, Lookup) {
	entry, lookup, err := e.store.Get(ctx, key, allowStale)
	if err != nil {
		e.logger.Warn("cache lookup failed",
			slog.String("key", key), slog.Any("error", err))
		lookup = LookupMiss
	}
	e.metrics.ObserveLookup(lookupOutcome(lookup), string(policy.Category))
	return entry, lookup
}

func lookupOutcome(lookup Lookup) metrics.LookupOutcome {
	switch lookup {
	case LookupHit:
		return metrics.LookupHit
	case LookupStale:
		return metrics.LookupStale
	default:
		return metrics.LookupMiss
	}
}

func outcomeLabel(result Result, err error) string {
	switch {
	case err != nil:
		return "error"
	case result.Stale:
		return "stale"
	case result.FromCache:
		return "hit"
	default:
		return "fetched"
	}
}
