// Package hooks implements the ordered action/filter bus that runs around
// every read and write. Handlers subscribe to lifecycle event names of the
// form <noun>.<verb>[.<collection>][:before|:after]; filters thread a typed
// Payload through the chain in priority order.
package hooks

import "github.com/jsguru-git/api/internal/schema"

// RelationIndexField is the reserved record key the one-to-many load filter
// writes its chosen index into. The gateway pops it when merging related
// rows into their parents.
const RelationIndexField = "__relation_index"

// Payload is the envelope threaded through a filter chain. Its event,
// collection, and attributes are fixed at creation; only Data mutates.
type Payload struct {
	event      string
	collection string
	attrs      map[string]interface{}

	// Data carries the record(s) under mutation. Single-record events wrap
	// exactly one record.
	Data []schema.Record
}

// NewPayload creates a payload carrying multiple records
func NewPayload(event, collection string, rows []schema.Record) *Payload {
	return &Payload{
		event:      event,
		collection: collection,
		attrs:      make(map[string]interface{}),
		Data:       rows,
	}
}

// NewRecordPayload creates a payload carrying a single record
func NewRecordPayload(event, collection string, record schema.Record) *Payload {
	return NewPayload(event, collection, []schema.Record{record})
}

// WithAttr sets an attribute at construction time and returns the payload.
// Attributes are read-only once the chain starts.
func (p *Payload) WithAttr(key string, value interface{}) *Payload {
	p.attrs[key] = value
	return p
}

// Event returns the event name the payload was created for
func (p *Payload) Event() string {
	return p.event
}

// Collection returns the collection the payload belongs to
func (p *Payload) Collection() string {
	return p.collection
}

// Attr returns a fixed attribute by key
func (p *Payload) Attr(key string) interface{} {
	return p.attrs[key]
}

// Record returns the first record, or nil when the payload is empty
func (p *Payload) Record() schema.Record {
	if len(p.Data) == 0 {
		return nil
	}
	return p.Data[0]
}

// Get reads a field from the first record
func (p *Payload) Get(key string) interface{} {
	r := p.Record()
	if r == nil {
		return nil
	}
	return r[key]
}

// Has reports whether the first record carries the field
func (p *Payload) Has(key string) bool {
	r := p.Record()
	if r == nil {
		return false
	}
	_, ok := r[key]
	return ok
}

// Set writes a field on the first record
func (p *Payload) Set(key string, value interface{}) {
	if r := p.Record(); r != nil {
		r[key] = value
	}
}

// Remove deletes a field from the first record
func (p *Payload) Remove(key string) {
	if r := p.Record(); r != nil {
		delete(r, key)
	}
}

// Replace swaps the payload's data for a new record set
func (p *Payload) Replace(rows []schema.Record) {
	p.Data = rows
}
