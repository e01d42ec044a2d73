package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryProvider is an in-process Provider backed by a TTL cache with
// bounded capacity. Once full, the oldest entry is evicted to admit a
// new one, so the store never holds more than capacity keys.
type MemoryProvider struct {
	mu    sync.Mutex
	items *ttlcache.Cache[string, []byte]
}

// NewMemoryProvider creates a provider retaining up to capacity keys
// for defaultTTL each. capacity <= 0 means unbounded.
func NewMemoryProvider(capacity int, defaultTTL time.Duration) *MemoryProvider {
	opts := []ttlcache.Option[string, []byte]{}
	if defaultTTL > 0 {
		opts = append(opts, ttlcache.WithTTL[string, []byte](defaultTTL))
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, []byte](uint64(capacity)))
	}
	items := ttlcache.New(opts...)
	go items.Start()
	return &MemoryProvider{items: items}
}

// Get returns the stored value or ErrCacheMiss.
func (m *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.items.Get(key)
	if item == nil {
		return nil, ErrCacheMiss
	}
	return item.Value(), nil
}

// Set stores the value under key for ttl. A non-positive ttl falls
// back to the cache default.
func (m *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	m.items.Set(key, value, ttl)
	return nil
}

// SetNX stores the value only if the key is absent, reporting whether
// the write happened.
func (m *MemoryProvider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items.Get(key) != nil {
		return false, nil
	}
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	m.items.Set(key, value, ttl)
	return true, nil
}

// Del removes the key if present.
func (m *MemoryProvider) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items.Delete(key)
	return nil
}

// Len returns the number of live entries.
func (m *MemoryProvider) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items.Len()
}

// Close stops the expiration loop.
func (m *MemoryProvider) Close() error {
	m.items.Stop()
	return nil
}
