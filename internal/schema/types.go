// Package schema holds collection and field metadata for the content API
// engine. A Collection describes one relational table exposed through the
// API: its fields, primary key, status column, and the bindings used by the
// stamping hooks. Collections are immutable once loaded for a request.
package schema

import "fmt"

// FieldKind represents the scalar kind of a field
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
	KindBoolean
	KindJSON
	KindArray
	KindDate
	KindRelation
)

// String returns the string representation of the field kind
func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindJSON:
		return "json"
	case KindArray:
		return "array"
	case KindDate:
		return "date"
	case KindRelation:
		return "relation"
	default:
		return "unknown"
	}
}

// ParseFieldKind converts a string to a FieldKind
func ParseFieldKind(s string) (FieldKind, error) {
	switch s {
	case "string":
		return KindString, nil
	case "number":
		return KindNumber, nil
	case "boolean":
		return KindBoolean, nil
	case "json":
		return KindJSON, nil
	case "array":
		return KindArray, nil
	case "date":
		return KindDate, nil
	case "relation":
		return KindRelation, nil
	default:
		return 0, fmt.Errorf("unknown field kind: %s", s)
	}
}

// Cardinality represents the direction of a relation field
type Cardinality int

const (
	ManyToOne Cardinality = iota
	OneToMany
)

// String returns the string representation of the cardinality
func (c Cardinality) String() string {
	switch c {
	case ManyToOne:
		return "many_to_one"
	case OneToMany:
		return "one_to_many"
	default:
		return "unknown"
	}
}

// ParseCardinality converts a string to a Cardinality
func ParseCardinality(s string) (Cardinality, error) {
	switch s {
	case "many_to_one", "":
		return ManyToOne, nil
	case "one_to_many":
		return OneToMany, nil
	default:
		return 0, fmt.Errorf("unknown cardinality: %s", s)
	}
}

// Relation describes how a relation field joins to another collection.
// For one-to-many, JoinColumn is the column on the target collection that
// points back at the parent. For many-to-one, JoinColumn is the local
// foreign-key column.
type Relation struct {
	Collection  string
	JoinColumn  string
	Cardinality Cardinality

	// Translation options, set when the owning field's interface is
	// "translation".
	LanguagesCollection string
	LanguageCodeColumn  string
	LeftColumn          string
}

// Field represents a typed column of a collection
type Field struct {
	Name string
	Kind FieldKind

	// Interface is a free-form tag consumed by hooks, e.g. "password" or
	// "translation".
	Interface string

	// Relation is set when Kind is KindRelation
	Relation *Relation
}

// IsRelation returns true if the field is a relation field
func (f *Field) IsRelation() bool {
	return f.Kind == KindRelation && f.Relation != nil
}

// Record is one row of a collection, keyed by field name. Partial records
// are allowed; a record is identified by its primary-key value once
// persisted.
type Record map[string]interface{}

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Collection represents one relational table registered in the schema
type Collection struct {
	Name   string
	Fields []*Field

	PrimaryKey string

	// StatusField and SoftDeleteValue configure soft deletes. A collection
	// without a status field cannot be soft-deleted.
	StatusField     string
	SoftDeleteValue interface{}

	// Stamp field bindings, applied by the system hooks
	DateCreatedField  string
	DateModifiedField string
	UserCreatedField  string
	UserModifiedField string
}

// Field returns the field with the given name, or nil
func (c *Collection) Field(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FieldNames returns the names of all fields in declaration order
func (c *Collection) FieldNames() []string {
	names := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		names = append(names, f.Name)
	}
	return names
}

// HasStatusField returns true if the collection declares a status column
func (c *Collection) HasStatusField() bool {
	return c.StatusField != ""
}

// RelationFields returns all relation fields of the collection
func (c *Collection) RelationFields() []*Field {
	var out []*Field
	for _, f := range c.Fields {
		if f.IsRelation() {
			out = append(out, f)
		}
	}
	return out
}

// HasFieldOfKind returns true if any field has the given kind
func (c *Collection) HasFieldOfKind(kind FieldKind) bool {
	for _, f := range c.Fields {
		if f.Kind == kind {
			return true
		}
	}
	return false
}
