// Package cache provides the tag-invalidated response cache. Entries are
// stored under fingerprint keys and indexed by invalidation tags so writes
// can evict every response that depended on a changed row.
package cache

import (
	"context"
	"time"
)

// Store defines the interface for all cache backends
type Store interface {
	// Get retrieves a value from the cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with a TTL and associates it with invalidation tags
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error

	// Delete removes a value from the cache
	Delete(ctx context.Context, key string) error

	// InvalidateTags removes every entry associated with any of the tags and
	// returns the number of entries removed
	InvalidateTags(ctx context.Context, tags ...string) (int, error)

	// Clear removes all values from the cache
	Clear(ctx context.Context) error

	// Exists checks if a key exists in the cache
	Exists(ctx context.Context, key string) (bool, error)
}

// Config holds common configuration for cache backends
type Config struct {
	// DefaultTTL is the default time-to-live for cached items
	DefaultTTL time.Duration
	// Prefix is prepended to all cache keys
	Prefix string
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 5 * time.Minute,
		Prefix:     "contentd:",
	}
}

// ErrCacheMiss is returned when a key is not found in the cache
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	_, ok := err.(ErrCacheMiss)
	return ok
}
