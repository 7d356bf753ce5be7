package cache

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Deduplicator collapses concurrent identical fetches into a single
// in-flight call. While a producer for a key is pending every new
// caller joins it; once it settles the key is forgotten so later calls
// invoke the producer again.
//
// A caller whose context is cancelled stops waiting, but the producer
// keeps running so its result still lands in the cache for whoever asks
// next. Result delivery to the abandoned caller is simply suppressed.
type Deduplicator struct {
	group singleflight.Group
}

// Do runs producer for key, sharing the result with every concurrent
// caller of the same key. shared reports whether the result came from a
// call another caller started.
func (d *Deduplicator) Do(ctx context.Context, key string, producer func() (any, error)) (value any, shared bool, err error) {
	ch := d.group.DoChan(key, producer)
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	}
}
