package usage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/insightxstack/insightx-nlq/internal/cache"
	"github.com/insightxstack/insightx-nlq/internal/models"
)

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, sessionID string, patterns []models.QueryPattern) error

// StorePatterns implements Store.
func (f StoreFunc) StorePatterns(ctx context.Context, sessionID string, patterns []models.QueryPattern) error {
	return f(ctx, sessionID, patterns)
}

// CacheStore persists mined patterns per session through the cache
// provider, sharing the session backend.
type CacheStore struct {
	provider cache.Provider
	ttl      time.Duration
}

// NewCacheStore wires pattern persistence onto a provider.
func NewCacheStore(provider cache.Provider, ttl time.Duration) *CacheStore {
	return &CacheStore{provider: provider, ttl: ttl}
}

// StorePatterns implements Store.
func (s *CacheStore) StorePatterns(ctx context.Context, sessionID string, patterns []models.QueryPattern) error {
	data, err := json.Marshal(patterns)
	if err != nil {
		return err
	}
	return s.provider.Set(ctx, cache.PatternKey(sessionID), data, s.ttl)
}
