package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/devicehub/devicehub/pkg/logger"
)

// Watcher reports changes to configuration files. It watches the parent
// directory of each file so editors that save by renaming are still seen.
type Watcher struct {
	watcher   *fsnotify.Watcher
	callbacks []func(path string)
	mu        sync.RWMutex
	// watched maps absolute file paths to the context that registered them.
	watched   map[string]context.Context
	dirs      map[string]int
	stopCh    chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// NewWatcher creates a new configuration file watcher.
func NewWatcher() (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		watcher: fsWatcher,
		watched: make(map[string]context.Context),
		dirs:    make(map[string]int),
		stopCh:  make(chan struct{}),
	}, nil
}

// Watch starts watching path until ctx is canceled or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	dir := filepath.Dir(absPath)
	w.mu.Lock()
	if _, ok := w.watched[absPath]; ok {
		w.mu.Unlock()
		return nil
	}
	if w.dirs[dir] == 0 {
		if err := w.watcher.Add(dir); err != nil {
			w.mu.Unlock()
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
	}
	w.dirs[dir]++
	w.watched[absPath] = ctx
	w.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-w.stopCh:
			return
		}
		w.unwatch(absPath, dir)
	}()
	w.startOnce.Do(func() {
		go w.handleEvents(ctx)
	})
	return nil
}

func (w *Watcher) unwatch(absPath, dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.watched, absPath)
	w.dirs[dir]--
	if w.dirs[dir] > 0 {
		return
	}
	delete(w.dirs, dir)
	_ = w.watcher.Remove(dir)
}

// OnChange registers a callback invoked with the path of a changed file.
func (w *Watcher) OnChange(callback func(path string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

func (w *Watcher) handleEvents(ctx context.Context) {
	log := logger.FromContext(ctx)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.RLock()
			pathCtx, watched := w.watched[filepath.Clean(event.Name)]
			w.mu.RUnlock()
			if !watched || pathCtx.Err() != nil {
				continue
			}
			w.notify(filepath.Clean(event.Name))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher) notify(path string) {
	w.mu.RLock()
	callbacks := make([]func(string), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()
	for _, callback := range callbacks {
		if callback != nil {
			callback(path)
		}
	}
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var closeErr error
	w.closeOnce.Do(func() {
		close(w.stopCh)
		if err := w.watcher.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close watcher: %w", err)
		}
	})
	return closeErr
}
