// Package gateway executes CRUD against the backing store for one
// collection. It translates relation fields into nested fetches, applies
// the access control policy, and runs the hook pipeline around every
// operation.
package gateway

import (
	"database/sql"
	"fmt"

	"github.com/jsguru-git/api/internal/acl"
	"github.com/jsguru-git/api/internal/errs"
	"github.com/jsguru-git/api/internal/hooks"
	"github.com/jsguru-git/api/internal/schema"
)

// Dialect selects the write-path SQL shape for the configured driver
type Dialect string

const (
	// DialectPostgres uses RETURNING to resolve generated keys
	DialectPostgres Dialect = "postgres"
	// DialectSQLite resolves generated keys through LastInsertId
	DialectSQLite Dialect = "sqlite"
)

// Gateway provides CRUD for one collection
type Gateway struct {
	collection *schema.Collection
	registry   *schema.Registry
	db         *sql.DB
	acl        *acl.ACL
	emitter    *hooks.Emitter
	dialect    Dialect
}

// New creates a gateway for the named collection. Unknown collections
// resolve to a not-found error before any store access.
func New(
	name string,
	db *sql.DB,
	registry *schema.Registry,
	a *acl.ACL,
	emitter *hooks.Emitter,
	dialect Dialect,
) (*Gateway, error) {
	c, ok := registry.Get(name)
	if !ok {
		return nil, errs.NotFound("collection %s", name)
	}
	if dialect == "" {
		dialect = DialectPostgres
	}
	return &Gateway{
		collection: c,
		registry:   registry,
		db:         db,
		acl:        a,
		emitter:    emitter,
		dialect:    dialect,
	}, nil
}

// Collection returns the collection metadata
func (g *Gateway) Collection() *schema.Collection {
	return g.collection
}

// Table returns the backing table name
func (g *Gateway) Table() string {
	return g.collection.Name
}

// PrimaryKey returns the primary-key field name
func (g *Gateway) PrimaryKey() string {
	return g.collection.PrimaryKey
}

// ACL returns the access control policy the gateway enforces
func (g *Gateway) ACL() *acl.ACL {
	return g.acl
}

// columns returns the column selection for a read, restricted to non-relation
// fields. The primary key is always included so relation expansion and
// row-level checks can key rows by id.
func (g *Gateway) columns(fields []string) []string {
	if len(fields) == 0 {
		var cols []string
		for _, f := range g.collection.Fields {
			if !f.IsRelation() || f.Relation.Cardinality == schema.ManyToOne {
				cols = append(cols, f.Name)
			}
		}
		return cols
	}

	cols := []string{g.collection.PrimaryKey}
	seen := map[string]bool{g.collection.PrimaryKey: true}
	for _, name := range fields {
		f := g.collection.Field(name)
		if f == nil || seen[name] {
			continue
		}
		if f.IsRelation() && f.Relation.Cardinality == schema.OneToMany {
			continue
		}
		cols = append(cols, name)
		seen[name] = true
	}
	return cols
}

// resolveID extracts the primary-key value from a record
func (g *Gateway) resolveID(record schema.Record) (interface{}, error) {
	id, ok := record[g.collection.PrimaryKey]
	if !ok || id == nil {
		return nil, fmt.Errorf("record has no %s value", g.collection.PrimaryKey)
	}
	return id, nil
}
