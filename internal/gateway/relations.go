package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/jsguru-git/api/internal/hooks"
	"github.com/jsguru-git/api/internal/query"
	"github.com/jsguru-git/api/internal/schema"
)

// expandRelations loads related records for every relation field present in
// the selection and merges them into the parent rows keyed by foreign-key
// value. Sub-fetches for independent relation fields run concurrently; the
// merge is deterministic regardless of completion order.
func (g *Gateway) expandRelations(ctx context.Context, rows []schema.Record, fields []string) error {
	if len(rows) == 0 {
		return nil
	}

	relations := g.selectedRelations(fields)
	if len(relations) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(relations))

	for _, field := range relations {
		wg.Add(1)
		go func(f *schema.Field) {
			defer wg.Done()
			var err error
			switch f.Relation.Cardinality {
			case schema.OneToMany:
				err = g.loadOneToMany(ctx, rows, f)
			case schema.ManyToOne:
				err = g.loadManyToOne(ctx, rows, f)
			}
			if err != nil {
				errCh <- fmt.Errorf("failed to load relation %s: %w", f.Name, err)
			}
		}(field)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}
	return nil
}

// selectedRelations returns the relation fields to expand. An empty
// selection expands no one-to-many relations; they are fetched only when
// asked for.
func (g *Gateway) selectedRelations(fields []string) []*schema.Field {
	var out []*schema.Field
	for _, name := range fields {
		f := g.collection.Field(name)
		if f != nil && f.IsRelation() {
			out = append(out, f)
		}
	}
	return out
}

// loadOneToMany fetches related rows keyed by the join column and merges
// them into parents as lists. Translation-interface fields are re-indexed
// by language code through the one-to-many load filter.
func (g *Gateway) loadOneToMany(ctx context.Context, rows []schema.Record, field *schema.Field) error {
	rel := field.Relation

	target, err := New(rel.Collection, g.db, g.registry, g.acl, g.emitter, g.dialect)
	if err != nil {
		return err
	}

	parentKeys := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		if id, ok := row[g.collection.PrimaryKey]; ok && id != nil {
			parentKeys = append(parentKeys, id)
		}
	}
	if len(parentKeys) == 0 {
		return nil
	}

	opts := &query.Options{}
	opts.WhereIn(rel.JoinColumn, parentKeys)
	related, err := target.Fetch(ctx, opts)
	if err != nil {
		return err
	}

	payload := hooks.NewPayload("load.relational.onetomany", rel.Collection, related).
		WithAttr("column", field).
		WithAttr("registry", g.registry)
	payload, err = g.emitter.RunFilter(ctx, "load.relational.onetomany", payload)
	if err != nil {
		return err
	}
	related = payload.Data

	indexed := hasRelationIndex(related)
	byParent := make(map[interface{}][]schema.Record)
	for _, rec := range related {
		key := normalizeValue(rec[rel.JoinColumn])
		byParent[key] = append(byParent[key], rec)
	}

	for _, row := range rows {
		key := normalizeValue(row[g.collection.PrimaryKey])
		children := byParent[key]
		if indexed {
			m := make(map[string]schema.Record, len(children))
			for _, child := range children {
				idx := fmt.Sprintf("%v", child[hooks.RelationIndexField])
				delete(child, hooks.RelationIndexField)
				m[idx] = child
			}
			row[field.Name] = m
		} else if children != nil {
			row[field.Name] = children
		} else {
			row[field.Name] = []schema.Record{}
		}
	}
	return nil
}

// loadManyToOne fetches the target rows for a local foreign-key column and
// merges a single related record into each parent
func (g *Gateway) loadManyToOne(ctx context.Context, rows []schema.Record, field *schema.Field) error {
	rel := field.Relation

	target, err := New(rel.Collection, g.db, g.registry, g.acl, g.emitter, g.dialect)
	if err != nil {
		return err
	}

	fks := make([]interface{}, 0, len(rows))
	seen := make(map[interface{}]bool)
	for _, row := range rows {
		fk := normalizeValue(row[rel.JoinColumn])
		if fk == nil || seen[fk] {
			continue
		}
		fks = append(fks, fk)
		seen[fk] = true
	}
	if len(fks) == 0 {
		return nil
	}

	opts := &query.Options{}
	opts.WhereIn(target.PrimaryKey(), fks)
	related, err := target.Fetch(ctx, opts)
	if err != nil {
		return err
	}

	byID := make(map[interface{}]schema.Record, len(related))
	for _, rec := range related {
		byID[normalizeValue(rec[target.PrimaryKey()])] = rec
	}

	for _, row := range rows {
		fk := normalizeValue(row[rel.JoinColumn])
		if fk == nil {
			continue
		}
		if rec, ok := byID[fk]; ok {
			row[field.Name] = rec
		}
	}
	return nil
}

func hasRelationIndex(rows []schema.Record) bool {
	for _, row := range rows {
		if _, ok := row[hooks.RelationIndexField]; ok {
			return true
		}
	}
	return false
}
