package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PolicyWatcher monitors the external policies file and invokes the
// supplied callback whenever the table changes. Stop must be called to
// release filesystem resources.
type PolicyWatcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for the underlying goroutine to exit.
func (w *PolicyWatcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// WatchPolicies wires fsnotify around the policies file and reloads the
// table on any relevant change. The callback receives only tables that
// passed validation; a malformed edit is reported through onError and
// the previous table stays live.
func WatchPolicies(ctx context.Context, path string, onChange func([]PolicyConfig), onError func(error)) (*PolicyWatcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("config: watch policies requires a change callback")
	}
	if path == "" {
		return nil, fmt.Errorf("config: no policies file configured for watching")
	}

	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve policies file: %w", err)
	}
	target := filepath.Clean(resolved)

	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("config: watch policies: %w", err)
	}
	// Watch the directory, not the file: editors commonly replace the
	// file by rename, which drops a direct file watch.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		cancel()
		return nil, fmt.Errorf("config: watch policies dir: %w", err)
	}

	done := make(chan struct{})
	watch := &PolicyWatcher{cancel: cancel, done: done}

	go func() {
		defer close(done)
		defer func() {
			if err := watcher.Close(); err != nil && onError != nil {
				onError(fmt.Errorf("config: watch policies close: %w", err))
			}
		}()

		reload := func() {
			policies, err := LoadPolicies(target)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				return
			}
			onChange(policies)
		}

		const debounce = 25 * time.Millisecond
		var reloadTimer *time.Timer
		var reloadSignal <-chan time.Time
		scheduleReload := func() {
			if reloadTimer == nil {
				reloadTimer = time.NewTimer(debounce)
			} else {
				if !reloadTimer.Stop() {
					select {
					case <-reloadTimer.C:
					default:
					}
				}
				reloadTimer.Reset(debounce)
			}
			reloadSignal = reloadTimer.C
		}

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-reloadSignal:
				reloadSignal = nil
				reload()
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && onError != nil {
					onError(fmt.Errorf("config: policies file %s removed", target))
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
					scheduleReload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(fmt.Errorf("config: watch error: %w", err))
				}
			}
		}
	}()

	return watch, nil
}
