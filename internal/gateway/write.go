package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jsguru-git/api/internal/acl"
	"github.com/jsguru-git/api/internal/errs"
	"github.com/jsguru-git/api/internal/hooks"
	"github.com/jsguru-git/api/internal/query"
	"github.com/jsguru-git/api/internal/schema"
)

// RowError records one failed row of a bulk update
type RowError struct {
	ID  interface{}
	Err error
}

// BatchResult reports the outcome of a bulk row update. Per-row failures
// are recorded here, not rolled back.
type BatchResult struct {
	IDs    []interface{}
	Errors []RowError
}

// Insert creates one record and returns the stored row including the
// generated primary key. The before-insert hook chain runs on the payload
// ahead of any store access.
func (g *Gateway) Insert(ctx context.Context, record schema.Record) (schema.Record, error) {
	if err := g.acl.EnforceCreate(g.collection.Name); err != nil {
		return nil, err
	}

	data := record.Clone()
	g.acl.FilterWriteFields(g.collection.Name, data)

	payload := hooks.NewRecordPayload("collection.insert:before", g.collection.Name, data).
		WithAttr("acl", g.acl)
	payload, err := g.emitter.RunFilter(ctx, "collection.insert:before", payload)
	if err != nil {
		return nil, err
	}
	if err := g.emitter.RunAction(ctx, "collection.insert:before", payload); err != nil {
		return nil, err
	}
	data = payload.Record()

	inserted, err := g.insertRow(ctx, data)
	if err != nil {
		return nil, err
	}

	after := hooks.NewRecordPayload("collection.insert:after", g.collection.Name, inserted).
		WithAttr("acl", g.acl)
	if err := g.emitter.RunAction(ctx, "collection.insert:after", after); err != nil {
		return nil, err
	}
	return inserted, nil
}

// insertRow executes the INSERT and resolves the stored row
func (g *Gateway) insertRow(ctx context.Context, data schema.Record) (schema.Record, error) {
	var fields []string
	var placeholders []string
	var values []interface{}
	counter := 1

	for _, f := range g.collection.Fields {
		if f.IsRelation() && f.Relation.Cardinality == schema.OneToMany {
			continue
		}
		if value, ok := data[f.Name]; ok {
			fields = append(fields, f.Name)
			placeholders = append(placeholders, fmt.Sprintf("$%d", counter))
			values = append(values, value)
			counter++
		}
	}
	if len(fields) == 0 {
		return nil, errs.Validation("no fields to insert into %s", g.collection.Name)
	}

	if g.dialect == DialectSQLite {
		q := fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s)",
			g.collection.Name,
			strings.Join(fields, ", "),
			strings.Join(placeholders, ", "),
		)
		res, err := g.db.ExecContext(ctx, q, values...)
		if err != nil {
			return nil, fmt.Errorf("failed to insert into %s: %w", g.collection.Name, ConvertDBError(err))
		}

		id, ok := data[g.collection.PrimaryKey]
		if !ok {
			generated, err := res.LastInsertId()
			if err != nil {
				return nil, fmt.Errorf("failed to resolve %s primary key: %w", g.collection.Name, ConvertDBError(err))
			}
			id = generated
		}
		return g.reselect(ctx, id)
	}

	returning := g.returningColumns()
	q := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		g.collection.Name,
		strings.Join(fields, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(returning, ", "),
	)

	row := g.db.QueryRowContext(ctx, q, values...)
	inserted, err := scanRowWithColumns(row, returning)
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", g.collection.Name, ConvertDBError(err))
	}
	return inserted, nil
}

// Update applies a partial record to all rows matching the conditions and
// returns the changed-row count. Every mutation resolves its primary-key
// set before the after-update actions fire.
func (g *Gateway) Update(ctx context.Context, partial schema.Record, conditions map[string]interface{}) (int, error) {
	if err := g.acl.EnforceUpdate(g.collection.Name); err != nil {
		return 0, err
	}
	if len(conditions) == 0 {
		return 0, errs.Validation("update on %s requires conditions", g.collection.Name)
	}

	ids, err := g.resolveTargetIDs(ctx, conditions, "update")
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	data := partial.Clone()
	delete(data, g.collection.PrimaryKey)
	g.acl.FilterWriteFields(g.collection.Name, data)

	payload := hooks.NewRecordPayload("collection.update:before", g.collection.Name, data).
		WithAttr("acl", g.acl).
		WithAttr("ids", ids)
	payload, err = g.emitter.RunFilter(ctx, "collection.update:before", payload)
	if err != nil {
		return 0, err
	}
	if err := g.emitter.RunAction(ctx, "collection.update:before", payload); err != nil {
		return 0, err
	}
	data = payload.Record()
	if len(data) == 0 {
		return 0, nil
	}

	changed, err := g.updateRows(ctx, data, ids)
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		after := hooks.NewRecordPayload("collection.update:after", g.collection.Name,
			schema.Record{g.collection.PrimaryKey: id}).
			WithAttr("acl", g.acl).
			WithAttr("id", id)
		if err := g.emitter.RunAction(ctx, "collection.update:after", after); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// UpdateRecord updates one row identified by the primary key inside the
// record and returns the stored row
func (g *Gateway) UpdateRecord(ctx context.Context, record schema.Record) (schema.Record, error) {
	id, err := g.resolveID(record)
	if err != nil {
		return nil, errs.Validation("%v", err)
	}

	if _, err := g.Update(ctx, record, map[string]interface{}{g.collection.PrimaryKey: id}); err != nil {
		return nil, err
	}
	return g.reselect(ctx, id)
}

// SoftDelete marks a row deleted by setting the configured status column.
// Collections without a status column fail with a bad-request error and no
// mutation occurs.
func (g *Gateway) SoftDelete(ctx context.Context, id interface{}) (int, error) {
	if !g.collection.HasStatusField() {
		return 0, errs.BadRequest("collection %s has no status field, cannot soft delete", g.collection.Name)
	}
	return g.Update(ctx,
		schema.Record{g.collection.StatusField: g.collection.SoftDeleteValue},
		map[string]interface{}{g.collection.PrimaryKey: id},
	)
}

// Delete removes all rows matching the conditions and returns the
// changed-row count
func (g *Gateway) Delete(ctx context.Context, conditions map[string]interface{}) (int, error) {
	if err := g.acl.EnforceDelete(g.collection.Name); err != nil {
		return 0, err
	}
	if len(conditions) == 0 {
		return 0, errs.Validation("delete on %s requires conditions", g.collection.Name)
	}

	ids, err := g.resolveTargetIDs(ctx, conditions, "delete")
	if err != nil {
		return 0, err
	}
	return g.DeleteByIDs(ctx, ids)
}

// DeleteByIDs removes the rows with the given primary keys in one
// conditional statement. An empty id list short-circuits with zero changed
// rows; callers validate non-empty input before invoking batch deletes.
func (g *Gateway) DeleteByIDs(ctx context.Context, ids []interface{}) (int, error) {
	if err := g.acl.EnforceDelete(g.collection.Name); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	before := hooks.NewPayload("collection.delete:before", g.collection.Name, nil).
		WithAttr("acl", g.acl).
		WithAttr("ids", ids)
	if err := g.emitter.RunAction(ctx, "collection.delete:before", before); err != nil {
		return 0, err
	}

	placeholders := make([]string, len(ids))
	for i := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	q := fmt.Sprintf(
		"DELETE FROM %s WHERE %s IN (%s)",
		g.collection.Name,
		g.collection.PrimaryKey,
		strings.Join(placeholders, ", "),
	)

	res, err := g.db.ExecContext(ctx, q, ids...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", g.collection.Name, ConvertDBError(err))
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to resolve deleted rows in %s: %w", g.collection.Name, ConvertDBError(err))
	}

	after := hooks.NewPayload("collection.delete:after", g.collection.Name, nil).
		WithAttr("acl", g.acl).
		WithAttr("ids", ids)
	if err := g.emitter.RunAction(ctx, "collection.delete:after", after); err != nil {
		return int(changed), err
	}
	return int(changed), nil
}

// UpdateCollection applies bulk row updates, one statement per row. Rows
// that fail are recorded in the result and do not abort the remaining rows.
func (g *Gateway) UpdateCollection(ctx context.Context, rows []schema.Record) (*BatchResult, error) {
	if err := g.acl.EnforceUpdate(g.collection.Name); err != nil {
		return nil, err
	}

	result := &BatchResult{}
	for _, row := range rows {
		id, err := g.resolveID(row)
		if err != nil {
			return nil, errs.Validation("%v", err)
		}
		if _, err := g.Update(ctx, row, map[string]interface{}{g.collection.PrimaryKey: id}); err != nil {
			result.Errors = append(result.Errors, RowError{ID: id, Err: err})
			continue
		}
		result.IDs = append(result.IDs, id)
	}
	return result, nil
}

// resolveTargetIDs resolves the primary keys of the rows a mutation will
// touch, applying the MINE ownership check on each row before any write
func (g *Gateway) resolveTargetIDs(ctx context.Context, conditions map[string]interface{}, verb string) ([]interface{}, error) {
	cols := []string{g.collection.PrimaryKey}
	if g.collection.UserCreatedField != "" {
		cols = append(cols, g.collection.UserCreatedField)
	}

	opts := &query.Options{Fields: cols}
	for field, value := range conditions {
		opts.Where(field, value)
	}

	rows, err := g.selectRows(ctx, opts)
	if err != nil {
		return nil, err
	}

	level := g.acl.Level(g.collection.Name, verb)
	var ids []interface{}
	for _, row := range rows {
		if level == acl.LevelMine && !g.acl.OwnsRecord(g.collection, row) {
			return nil, errs.Forbidden("not allowed to %s this record in %s", verb, g.collection.Name)
		}
		ids = append(ids, row[g.collection.PrimaryKey])
	}
	return ids, nil
}

// updateRows executes the UPDATE statement for a resolved id set
func (g *Gateway) updateRows(ctx context.Context, data schema.Record, ids []interface{}) (int, error) {
	var sets []string
	var values []interface{}
	counter := 1

	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := g.collection.Field(name)
		if f == nil || (f.IsRelation() && f.Relation.Cardinality == schema.OneToMany) {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", name, counter))
		values = append(values, data[name])
		counter++
	}
	if len(sets) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", counter)
		values = append(values, id)
		counter++
	}

	q := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s IN (%s)",
		g.collection.Name,
		strings.Join(sets, ", "),
		g.collection.PrimaryKey,
		strings.Join(placeholders, ", "),
	)

	res, err := g.db.ExecContext(ctx, q, values...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", g.collection.Name, ConvertDBError(err))
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to resolve updated rows in %s: %w", g.collection.Name, ConvertDBError(err))
	}
	return int(changed), nil
}

// reselect fetches a single raw row by primary key without the read hook
// chain; used to return stored rows after writes
func (g *Gateway) reselect(ctx context.Context, id interface{}) (schema.Record, error) {
	opts := &query.Options{}
	opts.Where(g.collection.PrimaryKey, id)
	rows, err := g.selectRows(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errs.NotFound("%s %v", g.collection.Name, id)
	}
	return rows[0], nil
}

// returningColumns lists the non-relation columns in sorted order for
// deterministic RETURNING clauses
func (g *Gateway) returningColumns() []string {
	var cols []string
	for _, f := range g.collection.Fields {
		if f.IsRelation() && f.Relation.Cardinality == schema.OneToMany {
			continue
		}
		cols = append(cols, f.Name)
	}
	sort.Strings(cols)
	return cols
}
