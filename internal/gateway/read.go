package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/jsguru-git/api/internal/errs"
	"github.com/jsguru-git/api/internal/hooks"
	"github.com/jsguru-git/api/internal/query"
	"github.com/jsguru-git/api/internal/schema"
)

// Fetch retrieves all records matching the query options, expands relation
// fields present in the selection, and runs the after-select filter chain.
// MINE read permissions push an ownership predicate into the store query.
func (g *Gateway) Fetch(ctx context.Context, opts *query.Options) ([]schema.Record, error) {
	if opts == nil {
		opts = &query.Options{}
	}
	if err := g.acl.EnforceRead(g.collection.Name); err != nil {
		return nil, err
	}

	scoped := *opts
	if col, owner, ok := g.acl.OwnershipFilter(g.collection); ok {
		scoped.Conditions = append(append([]query.Condition(nil), opts.Conditions...),
			query.Condition{Field: col, Operator: query.OpEqual, Value: owner})
	}

	rows, err := g.selectRows(ctx, &scoped)
	if err != nil {
		return nil, err
	}

	if err := g.expandRelations(ctx, rows, opts.Fields); err != nil {
		return nil, err
	}

	return g.afterSelect(ctx, rows)
}

// FetchByID retrieves a single record by primary key. Missing rows resolve
// to a not-found error; MINE read permissions resolve to not-found as well,
// so callers cannot probe for rows they do not own.
func (g *Gateway) FetchByID(ctx context.Context, id interface{}) (schema.Record, error) {
	opts := &query.Options{}
	opts.Where(g.collection.PrimaryKey, id)

	rows, err := g.Fetch(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errs.NotFound("%s %v", g.collection.Name, id)
	}
	return rows[0], nil
}

// Count returns the number of records matching the conditions
func (g *Gateway) Count(ctx context.Context, opts *query.Options) (int, error) {
	if opts == nil {
		opts = &query.Options{}
	}
	if err := g.acl.EnforceRead(g.collection.Name); err != nil {
		return 0, err
	}

	counter := 1
	where, args, err := opts.WhereSQL(&counter)
	if err != nil {
		return 0, errs.Validation("%v", err)
	}

	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", g.collection.Name)
	if where != "" {
		q += " WHERE " + where
	}

	var count int
	if err := g.db.QueryRowContext(ctx, q, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", g.collection.Name, ConvertDBError(err))
	}
	return count, nil
}

// selectRows executes the SELECT without relation expansion or hooks
func (g *Gateway) selectRows(ctx context.Context, opts *query.Options) ([]schema.Record, error) {
	cols := g.columns(opts.Fields)

	counter := 1
	where, args, err := opts.WhereSQL(&counter)
	if err != nil {
		return nil, errs.Validation("%v", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(cols, ", "), g.collection.Name)
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if order := opts.OrderSQL(); order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(order)
	}
	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", opts.Offset)
	}

	rows, err := g.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", g.collection.Name, ConvertDBError(err))
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s rows: %w", g.collection.Name, ConvertDBError(err))
	}
	return results, nil
}

// afterSelect runs the after-select filter chain (codec decoding, derived
// fields, redaction) and the read-field blacklist
func (g *Gateway) afterSelect(ctx context.Context, rows []schema.Record) ([]schema.Record, error) {
	payload := hooks.NewPayload("collection.select", g.collection.Name, rows).
		WithAttr("acl", g.acl)

	payload, err := g.emitter.RunFilter(ctx, "collection.select", payload)
	if err != nil {
		return nil, err
	}

	for _, row := range payload.Data {
		g.acl.FilterReadFields(g.collection.Name, row)
	}
	return payload.Data, nil
}
