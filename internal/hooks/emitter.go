package hooks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Listener priorities. Higher priority runs earlier; registration order is
// stable among equal priorities.
const (
	PriorityLow     = -100
	PriorityDefault = 0
	PriorityHigh    = 100
)

// FilterFunc transforms a payload. Returning an error aborts the remaining
// chain and propagates to the caller.
type FilterFunc func(ctx context.Context, p *Payload) (*Payload, error)

// ActionFunc observes an event. Its return value is discarded by callers
// that treat the action as best-effort; the emitter itself propagates it.
type ActionFunc func(ctx context.Context, p *Payload) error

type listener struct {
	filter   FilterFunc
	action   ActionFunc
	priority int
	seq      int
}

// Emitter is the ordered action/filter bus
type Emitter struct {
	mu      sync.RWMutex
	filters map[string][]*listener
	actions map[string][]*listener
	seq     int
}

// NewEmitter creates an empty emitter
func NewEmitter() *Emitter {
	return &Emitter{
		filters: make(map[string][]*listener),
		actions: make(map[string][]*listener),
	}
}

// AddFilter subscribes a filter to an event name. A name without a
// collection segment matches every collection for that verb.
func (e *Emitter) AddFilter(event string, fn FilterFunc, priority int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	e.filters[event] = append(e.filters[event], &listener{filter: fn, priority: priority, seq: e.seq})
}

// AddAction subscribes an action to an event name
func (e *Emitter) AddAction(event string, fn ActionFunc, priority int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	e.actions[event] = append(e.actions[event], &listener{action: fn, priority: priority, seq: e.seq})
}

// QualifyEvent inserts a collection segment into an event name, keeping the
// :before/:after suffix in place: ("collection.insert:before", "posts")
// becomes "collection.insert.posts:before".
func QualifyEvent(event, collection string) string {
	if collection == "" {
		return event
	}
	if i := strings.IndexByte(event, ':'); i >= 0 {
		return event[:i] + "." + collection + event[i:]
	}
	return event + "." + collection
}

// RunFilter threads the payload through all filters matching the event for
// the payload's collection, generic and collection-qualified listeners
// interleaved strictly by priority.
func (e *Emitter) RunFilter(ctx context.Context, event string, p *Payload) (*Payload, error) {
	for _, l := range e.matching(e.filters, event, p.Collection()) {
		next, err := l.filter(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("filter %s failed: %w", event, err)
		}
		if next != nil {
			p = next
		}
	}
	return p, nil
}

// RunAction invokes all actions matching the event for the payload's
// collection. The first error aborts the remaining handlers.
func (e *Emitter) RunAction(ctx context.Context, event string, p *Payload) error {
	for _, l := range e.matching(e.actions, event, p.Collection()) {
		if err := l.action(ctx, p); err != nil {
			return fmt.Errorf("action %s failed: %w", event, err)
		}
	}
	return nil
}

// HasListeners reports whether any filter or action matches the event
func (e *Emitter) HasListeners(event, collection string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	qualified := QualifyEvent(event, collection)
	return len(e.filters[event]) > 0 || len(e.filters[qualified]) > 0 ||
		len(e.actions[event]) > 0 || len(e.actions[qualified]) > 0
}

// matching merges generic and collection-qualified listeners ordered by
// priority (higher first), registration order stable among equals
func (e *Emitter) matching(table map[string][]*listener, event, collection string) []*listener {
	e.mu.RLock()
	merged := make([]*listener, 0, len(table[event]))
	merged = append(merged, table[event]...)
	if collection != "" {
		merged = append(merged, table[QualifyEvent(event, collection)]...)
	}
	e.mu.RUnlock()

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].priority != merged[j].priority {
			return merged[i].priority > merged[j].priority
		}
		return merged[i].seq < merged[j].seq
	})
	return merged
}
