package schema

import (
	"context"
	"fmt"
	"sync"
)

// Loader loads collection metadata from the backing store. The registry
// calls it on Refresh, never implicitly mid-request.
type Loader interface {
	LoadCollections(ctx context.Context) ([]*Collection, error)
}

// Registry manages all registered collections
type Registry struct {
	collections map[string]*Collection
	loader      Loader
	mu          sync.RWMutex
}

// NewRegistry creates a new schema registry
func NewRegistry() *Registry {
	return &Registry{
		collections: make(map[string]*Collection),
	}
}

// NewRegistryWithLoader creates a registry that can refresh itself from a loader
func NewRegistryWithLoader(loader Loader) *Registry {
	r := NewRegistry()
	r.loader = loader
	return r
}

// Register registers a collection
func (r *Registry) Register(c *Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.Name == "" {
		return fmt.Errorf("collection name is required")
	}
	if _, exists := r.collections[c.Name]; exists {
		return fmt.Errorf("collection %s is already registered", c.Name)
	}
	if c.PrimaryKey == "" {
		c.PrimaryKey = "id"
	}
	if c.Field(c.PrimaryKey) == nil {
		return fmt.Errorf("collection %s has no primary key field %s", c.Name, c.PrimaryKey)
	}

	r.collections[c.Name] = c
	return nil
}

// Get retrieves a collection by name
func (r *Registry) Get(name string) (*Collection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.collections[name]
	return c, exists
}

// Exists checks if a collection is registered
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.collections[name]
	return exists
}

// Fields returns the fields of a collection restricted to the given names.
// With no names it returns all fields.
func (r *Registry) Fields(collection string, names ...string) ([]*Field, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.collections[collection]
	if !exists {
		return nil, fmt.Errorf("collection %s not found", collection)
	}

	if len(names) == 0 {
		return c.Fields, nil
	}

	var out []*Field
	for _, name := range names {
		f := c.Field(name)
		if f == nil {
			return nil, fmt.Errorf("collection %s has no field %s", collection, name)
		}
		out = append(out, f)
	}
	return out, nil
}

// HasStatusField returns true if the collection declares a status column
func (r *Registry) HasStatusField(collection string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.collections[collection]
	return exists && c.HasStatusField()
}

// List returns the names of all registered collections
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.collections))
	for name := range r.collections {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered collections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.collections)
}

// Clear removes all registered collections (useful for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.collections = make(map[string]*Collection)
}

// Refresh reloads all collections from the loader, replacing the current
// set atomically. Called on schema-mutation events.
func (r *Registry) Refresh(ctx context.Context) error {
	if r.loader == nil {
		return fmt.Errorf("registry has no loader")
	}

	loaded, err := r.loader.LoadCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload collections: %w", err)
	}

	next := make(map[string]*Collection, len(loaded))
	for _, c := range loaded {
		if c.PrimaryKey == "" {
			c.PrimaryKey = "id"
		}
		next[c.Name] = c
	}

	r.mu.Lock()
	r.collections = next
	r.mu.Unlock()

	return nil
}
