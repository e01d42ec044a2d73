package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider defines the minimal cache operations needed by the session
// store and the optional result cache.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	Close() error
}

// ErrCacheMiss signals that a cache key was not found.
var ErrCacheMiss = errors.New("cache miss")

// SessionKey builds the storage key for a session's state.
func SessionKey(sessionID string) string {
	return fmt.Sprintf("insightx:session:%s", sessionID)
}

// ResultKey builds the storage key for a cached computed result. The
// hash must already incorporate the vocabulary version.
func ResultKey(intentHash string) string {
	return fmt.Sprintf("insightx:result:%s", intentHash)
}

// PatternKey builds the storage key for a session's mined query
// patterns.
func PatternKey(sessionID string) string {
	return fmt.Sprintf("insightx:usage:%s", sessionID)
}

// NoopProvider implements Provider but never stores data.
type NoopProvider struct{}

// Get always returns ErrCacheMiss.
func (NoopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

// Set discards the value and returns nil.
func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

// SetNX pretends to store the value and reports success.
func (NoopProvider) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}

// Del is a no-op for the noop cache.
func (NoopProvider) Del(context.Context, string) error { return nil }

// Close is a no-op.
func (NoopProvider) Close() error { return nil }
