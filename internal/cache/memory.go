package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements an in-memory cache with TTL and tag support
type MemoryStore struct {
	mu     sync.Mutex
	data   map[string]cacheItem
	tags   map[string]map[string]struct{}
	config Config
	cancel context.CancelFunc
}

// cacheItem represents an item stored in the cache
type cacheItem struct {
	value      []byte
	expiration time.Time
	tags       []string
}

// NewMemoryStore creates a new in-memory cache
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithConfig(DefaultConfig())
}

// NewMemoryStoreWithConfig creates a new in-memory cache with custom configuration
func NewMemoryStoreWithConfig(config Config) *MemoryStore {
	ctx, cancel := context.WithCancel(context.Background())
	m := &MemoryStore{
		data:   make(map[string]cacheItem),
		tags:   make(map[string]map[string]struct{}),
		config: config,
		cancel: cancel,
	}

	// Background cleanup of expired items
	go m.cleanupExpired(ctx)

	return m
}

// Get retrieves a value from the cache
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fullKey := m.config.Prefix + key

	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.data[fullKey]
	if !ok {
		return nil, ErrCacheMiss{Key: key}
	}

	if !item.expiration.IsZero() && time.Now().After(item.expiration) {
		m.removeLocked(fullKey, item)
		return nil, ErrCacheMiss{Key: key}
	}

	return item.value, nil
}

// Set stores a value with a TTL and associates it with invalidation tags
func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	fullKey := m.config.Prefix + key

	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}

	item := cacheItem{
		value: value,
		tags:  tags,
	}
	if ttl > 0 {
		item.expiration = time.Now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.data[fullKey]; ok {
		m.unindexLocked(fullKey, old)
	}
	m.data[fullKey] = item
	for _, tag := range tags {
		keys, ok := m.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			m.tags[tag] = keys
		}
		keys[fullKey] = struct{}{}
	}
	return nil
}

// Delete removes a value from the cache
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	fullKey := m.config.Prefix + key

	m.mu.Lock()
	defer m.mu.Unlock()

	if item, ok := m.data[fullKey]; ok {
		m.removeLocked(fullKey, item)
	}
	return nil
}

// InvalidateTags removes every entry associated with any of the tags
func (m *MemoryStore) InvalidateTags(ctx context.Context, tags ...string) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, tag := range tags {
		for fullKey := range m.tags[tag] {
			if item, ok := m.data[fullKey]; ok {
				m.removeLocked(fullKey, item)
				removed++
			}
		}
		delete(m.tags, tag)
	}
	return removed, nil
}

// Clear removes all values from the cache
func (m *MemoryStore) Clear(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string]cacheItem)
	m.tags = make(map[string]map[string]struct{})
	return nil
}

// Exists checks if a key exists in the cache
func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	fullKey := m.config.Prefix + key

	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.data[fullKey]
	if !ok {
		return false, nil
	}
	if !item.expiration.IsZero() && time.Now().After(item.expiration) {
		m.removeLocked(fullKey, item)
		return false, nil
	}
	return true, nil
}

// Close stops the background cleanup goroutine
func (m *MemoryStore) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

// removeLocked deletes an item and its tag index entries; callers hold mu
func (m *MemoryStore) removeLocked(fullKey string, item cacheItem) {
	delete(m.data, fullKey)
	m.unindexLocked(fullKey, item)
}

func (m *MemoryStore) unindexLocked(fullKey string, item cacheItem) {
	for _, tag := range item.tags {
		if keys, ok := m.tags[tag]; ok {
			delete(keys, fullKey)
			if len(keys) == 0 {
				delete(m.tags, tag)
			}
		}
	}
}

// cleanupExpired periodically removes expired items from the cache
func (m *MemoryStore) cleanupExpired(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			for fullKey, item := range m.data {
				if !item.expiration.IsZero() && now.After(item.expiration) {
					m.removeLocked(fullKey, item)
				}
			}
			m.mu.Unlock()
		}
	}
}
