package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeduplicatorSingleCall(t *testing.T) {
	var dedupe Deduplicator

	value, shared, err := dedupe.Do(context.Background(), "key", func() (any, error) {
		return "v", nil
	})
	require.NoError(t, err)
	require.Equal(t, "v", value)
	require.False(t, shared)
}

func TestDeduplicatorCollapsesConcurrentCalls(t *testing.T) {
	var dedupe Deduplicator
	var calls atomic.Int64

	producer := func() (any, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return "shared", nil
	}

	const callers = 10
	var wg sync.WaitGroup
	values := make([]any, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			values[i], _, _ = dedupe.Do(context.Background(), "key", producer)
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, calls.Load())
	for i := range callers {
		require.Equal(t, "shared", values[i])
	}
}

func TestDeduplicatorDistinctKeysRunSeparately(t *testing.T) {
	var dedupe Deduplicator
	var calls atomic.Int64

	producer := func() (any, error) {
		calls.Add(1)
		return nil, nil
	}

	_, _, _ = dedupe.Do(context.Background(), "a", producer)
	_, _, _ = dedupe.Do(context.Background(), "b", producer)
	require.EqualValues(t, 2, calls.Load())
}

func TestDeduplicatorSequentialCallsRerun(t *testing.T) {
	var dedupe Deduplicator
	var calls atomic.Int64

	for range 3 {
		_, _, err := dedupe.Do(context.Background(), "key", func() (any, error) {
			calls.Add(1)
			return nil, nil
		})
		require.NoError(t, err)
	}
	require.EqualValues(t, 3, calls.Load())
}

func TestDeduplicatorSharesErrors(t *testing.T) {
	var dedupe Deduplicator
	boom := errors.New("boom")

	_, _, err := dedupe.Do(context.Background(), "key", func() (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestDeduplicatorCancelledCallerLeavesProducerRunning(t *testing.T) {
	var dedupe Deduplicator
	started := make(chan struct{})
	finished := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, _, err := dedupe.Do(ctx, "key", func() (any, error) {
		close(started)
		time.Sleep(30 * time.Millisecond)
		close(finished)
		return "late", nil
	})
	require.ErrorIs(t, err, context.Canceled)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("producer should keep running after the caller gives up")
	}
}
