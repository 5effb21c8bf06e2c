// Package cache provides a generic TTL cache and a janitor that sweeps expired
// entries in the background.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cache is the subset of LRUCache callers depend on.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is implemented by caches that can drop their expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically cleans every registered cache until its context ends.
type Manager struct {
	mu     sync.Mutex
	caches map[string]Cleaner
}

func NewManager() *Manager {
	return &Manager{caches: make(map[string]Cleaner)}
}

// Register adds a named cache to the sweep.
func (m *Manager) Register(name string, c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches[name] = c
}

// Sweep cleans every registered cache once and returns the number of removed entries.
func (m *Manager) Sweep(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for name, c := range m.caches {
		if n := c.CleanExpired(); n > 0 {
			slog.DebugContext(ctx, "Expired cache entries removed", "component", "cache", "cache", name, "count", n)
			total += n
		}
	}
	return total
}

// Run sweeps every interval and returns when ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}
