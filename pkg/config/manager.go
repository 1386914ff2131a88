package config

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/romdo/go-debounce"

	"github.com/devicehub/devicehub/pkg/logger"
)

const (
	defaultReloadDebounce = 100 * time.Millisecond
	maxReloadWait         = time.Second
)

// LoadFunc resolves the sources for one load. It runs again on every reload
// so file sources see the current contents of the config file.
type LoadFunc func(ctx context.Context) ([]Source, error)

// Manager holds the current configuration and reloads it when the config
// file changes.
type Manager struct {
	service    Service
	load       LoadFunc
	current    atomic.Pointer[Config]
	callbacks  []func(*Config)
	callbackMu sync.RWMutex
	reloadMu   sync.Mutex
	watchMu    sync.Mutex
	debounce   time.Duration
	cancel     func()
	watcher    *Watcher
	closeOnce  sync.Once
}

// NewManager creates a configuration manager around service.
func NewManager(service Service, load LoadFunc) *Manager {
	return &Manager{
		service:  service,
		load:     load,
		debounce: defaultReloadDebounce,
	}
}

// SetDebounce sets how long file events are coalesced before a reload. It
// must be called before Watch.
func (m *Manager) SetDebounce(d time.Duration) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	m.debounce = d
}

// Load performs the initial load.
func (m *Manager) Load(ctx context.Context) (*Config, error) {
	if err := m.Reload(ctx); err != nil {
		return nil, err
	}
	return m.Get(), nil
}

// Get returns the current configuration, or nil before the first load.
func (m *Manager) Get() *Config {
	return m.current.Load()
}

// Service returns the underlying configuration service.
func (m *Manager) Service() Service {
	return m.service
}

// Reload resolves the sources again and applies the result. On failure the
// previous configuration stays in effect.
func (m *Manager) Reload(ctx context.Context) error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()
	sources, err := m.load(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve configuration sources: %w", err)
	}
	cfg, err := m.service.Load(ctx, sources...)
	for _, source := range sources {
		if source != nil {
			_ = source.Close()
		}
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	m.apply(cfg)
	return nil
}

// OnChange registers a callback invoked when the configuration changes.
func (m *Manager) OnChange(callback func(*Config)) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// Watch reloads the configuration whenever path changes, until ctx is
// canceled or the manager is closed. Bursts of events are coalesced, but a
// reload runs at least once a second while events keep arriving.
func (m *Manager) Watch(ctx context.Context, path string) error {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	if m.watcher == nil {
		w, err := NewWatcher()
		if err != nil {
			return err
		}
		reload, cancel := debounce.NewWithMaxWait(m.debounce, maxReloadWait, func() {
			if ctx.Err() != nil {
				return
			}
			if err := m.Reload(ctx); err != nil {
				logger.FromContext(ctx).Error("Failed to reload configuration", "error", err)
			}
		})
		w.OnChange(func(string) { reload() })
		m.watcher = w
		m.cancel = cancel
	}
	return m.watcher.Watch(ctx, path)
}

// Close stops watching.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.watchMu.Lock()
		defer m.watchMu.Unlock()
		if m.cancel != nil {
			m.cancel()
		}
		if m.watcher != nil {
			err = m.watcher.Close()
		}
	})
	return err
}

func (m *Manager) apply(cfg *Config) {
	previous := m.current.Swap(cfg)
	if previous != nil && reflect.DeepEqual(previous, cfg) {
		return
	}
	m.callbackMu.RLock()
	callbacks := make([]func(*Config), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.callbackMu.RUnlock()
	for _, callback := range callbacks {
		if callback != nil {
			callback(cfg)
		}
	}
}
