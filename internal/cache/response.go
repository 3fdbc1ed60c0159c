package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Tag constructors shared by readers recording dependencies and the write
// path invalidating them.

// TagTable tags every response that read from the collection
func TagTable(collection string) string {
	return "table_" + collection
}

// TagEntity tags responses that included the row with the given id
func TagEntity(collection string, id interface{}) string {
	return fmt.Sprintf("entity_%s_%v", collection, id)
}

// TagPermissions tags responses whose visibility depends on the
// collection's permission rows
func TagPermissions(collection string) string {
	return "permissions_collection_" + collection
}

// Fingerprint derives the cache key for a read. The canonical query string
// and the caller's role both participate, so the same query under different
// permissions never shares an entry.
func Fingerprint(collection, role, canonical string) string {
	key := strings.Join([]string{collection, role, canonical}, ":")
	hash := sha256.Sum256([]byte(key))
	// 16 bytes keeps keys short without meaningful collision risk
	return "response:" + hex.EncodeToString(hash[:16])
}

// ResponseCache caches serialized read responses in a Store. Backend
// outages degrade to cache misses; they are logged and never surfaced to
// the request.
type ResponseCache struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewResponseCache creates a response cache over the given backend
func NewResponseCache(store Store, ttl time.Duration, logger *zap.Logger) *ResponseCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseCache{
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// Get looks up a cached response and unmarshals it into out. The second
// return is false on a miss or a backend failure.
func (c *ResponseCache) Get(ctx context.Context, key string, out interface{}) bool {
	if c == nil || c.store == nil {
		return false
	}

	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !IsCacheMiss(err) {
			c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Set stores a response under the key with the given invalidation tags.
// Failures are logged and swallowed.
func (c *ResponseCache) Set(ctx context.Context, key string, value interface{}, tags ...string) {
	if c == nil || c.store == nil {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, raw, c.ttl, tags...); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate evicts every cached response carrying any of the tags
func (c *ResponseCache) Invalidate(ctx context.Context, tags ...string) {
	if c == nil || c.store == nil {
		return
	}
	if _, err := c.store.InvalidateTags(ctx, tags...); err != nil {
		c.logger.Warn("cache invalidation failed", zap.Strings("tags", tags), zap.Error(err))
	}
}
