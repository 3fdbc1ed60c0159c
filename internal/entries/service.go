// Package entries orchestrates reads and mutations over the relational
// gateway: request validation, response caching, and the envelope every
// transport returns.
package entries

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/jsguru-git/api/internal/acl"
	"github.com/jsguru-git/api/internal/cache"
	"github.com/jsguru-git/api/internal/errs"
	"github.com/jsguru-git/api/internal/gateway"
	"github.com/jsguru-git/api/internal/hooks"
	"github.com/jsguru-git/api/internal/query"
	"github.com/jsguru-git/api/internal/schema"
)

// Batch verbs accepted by Batch
const (
	VerbPost   = "post"
	VerbPatch  = "patch"
	VerbDelete = "delete"
)

// Meta describes a result set
type Meta struct {
	Collection  string `json:"collection"`
	Type        string `json:"type"`
	ResultCount int    `json:"result_count"`
	TotalCount  int    `json:"total_count,omitempty"`
}

// ResultError carries a caller-safe failure message. Store internals never
// appear here.
type ResultError struct {
	Message string `json:"message"`
}

// Result is the envelope every operation returns
type Result struct {
	Data  interface{}  `json:"data,omitempty"`
	Meta  *Meta        `json:"meta,omitempty"`
	Error *ResultError `json:"error,omitempty"`
}

// Service orchestrates entry operations for all collections
type Service struct {
	db       *sql.DB
	registry *schema.Registry
	emitter  *hooks.Emitter
	cache    *cache.ResponseCache
	dialect  gateway.Dialect
	logger   *zap.Logger
}

// New creates the entries service
func New(
	db *sql.DB,
	registry *schema.Registry,
	emitter *hooks.Emitter,
	responseCache *cache.ResponseCache,
	dialect gateway.Dialect,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       db,
		registry: registry,
		emitter:  emitter,
		cache:    responseCache,
		dialect:  dialect,
		logger:   logger,
	}
}

func (s *Service) gateway(collection string, a *acl.ACL) (*gateway.Gateway, error) {
	return gateway.New(collection, s.db, s.registry, a, s.emitter, s.dialect)
}

// ListOrCreate lists entries matching the options, or creates one entry
// when a new record is given
func (s *Service) ListOrCreate(ctx context.Context, a *acl.ACL, collection string, opts *query.Options, newRecord schema.Record) (*Result, error) {
	gw, err := s.gateway(collection, a)
	if err != nil {
		return nil, err
	}

	if newRecord != nil {
		created, err := gw.Insert(ctx, newRecord)
		if err != nil {
			s.reportError(ctx, collection, err)
			return nil, err
		}
		return &Result{Data: created}, nil
	}

	if opts == nil {
		opts = &query.Options{}
	}

	key := cache.Fingerprint(collection, a.Role(), opts.Canonical())
	var cached Result
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	rows, err := gw.Fetch(ctx, opts)
	if err != nil {
		s.reportError(ctx, collection, err)
		return nil, err
	}

	result := &Result{Data: rows}
	if opts.Meta {
		total, err := gw.Count(ctx, opts)
		if err != nil {
			s.reportError(ctx, collection, err)
			return nil, err
		}
		result.Meta = &Meta{
			Collection:  collection,
			Type:        "collection",
			ResultCount: len(rows),
			TotalCount:  total,
		}
	}

	tags := []string{cache.TagTable(collection), cache.TagPermissions(collection)}
	for _, row := range rows {
		if id, ok := row[gw.PrimaryKey()]; ok {
			tags = append(tags, cache.TagEntity(collection, id))
		}
	}
	s.cache.Set(ctx, key, result, tags...)

	return result, nil
}

// Batch applies one verb to many rows. Create and update record per-row
// failures without failing the batch; delete is atomic and reports its
// failure in the error envelope.
func (s *Service) Batch(ctx context.Context, a *acl.ACL, collection, verb string, rows []schema.Record, opts *query.Options) (*Result, error) {
	if len(rows) == 0 {
		return nil, errs.Validation("batch %s on %s requires at least one row", verb, collection)
	}

	gw, err := s.gateway(collection, a)
	if err != nil {
		return nil, err
	}

	switch verb {
	case VerbPost:
		return s.batchCreate(ctx, gw, rows)
	case VerbPatch:
		return s.batchUpdate(ctx, gw, rows)
	case VerbDelete:
		return s.batchDelete(ctx, gw, rows)
	default:
		return nil, errs.BadRequest("unsupported batch verb %q", verb)
	}
}

func (s *Service) batchCreate(ctx context.Context, gw *gateway.Gateway, rows []schema.Record) (*Result, error) {
	var created []schema.Record
	var failed int
	for _, row := range rows {
		record, err := gw.Insert(ctx, row)
		if err != nil {
			if errs.IsForbidden(err) {
				return nil, err
			}
			s.reportError(ctx, gw.Table(), err)
			failed++
			continue
		}
		created = append(created, record)
	}

	result := &Result{
		Data: created,
		Meta: &Meta{Collection: gw.Table(), Type: "collection", ResultCount: len(created)},
	}
	if failed > 0 {
		result.Error = &ResultError{Message: errMessage(errs.Validation("%d of %d rows failed", failed, len(rows)))}
	}
	return result, nil
}

func (s *Service) batchUpdate(ctx context.Context, gw *gateway.Gateway, rows []schema.Record) (*Result, error) {
	for _, row := range rows {
		if _, ok := row[gw.PrimaryKey()]; !ok {
			return nil, errs.Validation("batch update rows require a %s value", gw.PrimaryKey())
		}
	}

	batch, err := gw.UpdateCollection(ctx, rows)
	if err != nil {
		s.reportError(ctx, gw.Table(), err)
		return nil, err
	}

	result := &Result{
		Data: schema.Record{"ids": batch.IDs},
		Meta: &Meta{Collection: gw.Table(), Type: "collection", ResultCount: len(batch.IDs)},
	}
	if len(batch.Errors) > 0 {
		result.Error = &ResultError{Message: errMessage(errs.Validation("%d of %d rows failed", len(batch.Errors), len(rows)))}
	}
	return result, nil
}

// batchDelete removes all rows in one statement. A failure deletes nothing
// and surfaces in the error envelope rather than as a transport error.
func (s *Service) batchDelete(ctx context.Context, gw *gateway.Gateway, rows []schema.Record) (*Result, error) {
	ids := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		id, ok := row[gw.PrimaryKey()]
		if !ok || id == nil {
			return nil, errs.Validation("batch delete rows require a %s value", gw.PrimaryKey())
		}
		ids = append(ids, id)
	}

	changed, err := gw.DeleteByIDs(ctx, ids)
	if err != nil {
		if errs.IsForbidden(err) {
			return nil, err
		}
		s.reportError(ctx, gw.Table(), err)
		return &Result{Error: &ResultError{Message: errMessage(err)}}, nil
	}

	return &Result{
		Meta: &Meta{Collection: gw.Table(), Type: "collection", ResultCount: changed},
	}, nil
}

// GetOne reads, replaces, patches, or deletes a single entry by id
func (s *Service) GetOne(ctx context.Context, a *acl.ACL, collection string, id interface{}, verb string, payload schema.Record, opts *query.Options, soft bool) (*Result, error) {
	gw, err := s.gateway(collection, a)
	if err != nil {
		return nil, err
	}

	switch verb {
	case "get":
		return s.getEntry(ctx, gw, a, id, opts)

	case "put", "patch":
		if payload == nil {
			return nil, errs.Validation("%s on %s/%v requires a payload", verb, collection, id)
		}
		record := payload.Clone()
		record[gw.PrimaryKey()] = id
		updated, err := gw.UpdateRecord(ctx, record)
		if err != nil {
			s.reportError(ctx, collection, err)
			return nil, err
		}
		return &Result{Data: updated}, nil

	case "delete":
		if soft {
			changed, err := gw.SoftDelete(ctx, id)
			if err != nil {
				s.reportError(ctx, collection, err)
				return nil, err
			}
			if changed == 0 {
				return nil, errs.NotFound("%s %v", collection, id)
			}
			return &Result{}, nil
		}
		changed, err := gw.DeleteByIDs(ctx, []interface{}{id})
		if err != nil {
			s.reportError(ctx, collection, err)
			return nil, err
		}
		if changed == 0 {
			return nil, errs.NotFound("%s %v", collection, id)
		}
		return &Result{}, nil

	default:
		return nil, errs.BadRequest("unsupported verb %q", verb)
	}
}

func (s *Service) getEntry(ctx context.Context, gw *gateway.Gateway, a *acl.ACL, id interface{}, opts *query.Options) (*Result, error) {
	if opts == nil {
		opts = &query.Options{}
	}
	scoped := *opts
	scoped.Conditions = append([]query.Condition{}, opts.Conditions...)
	scoped.Where(gw.PrimaryKey(), id)
	scoped.Limit = 1

	key := cache.Fingerprint(gw.Table(), a.Role(), scoped.Canonical())
	var cached Result
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	rows, err := gw.Fetch(ctx, &scoped)
	if err != nil {
		s.reportError(ctx, gw.Table(), err)
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errs.NotFound("%s %v", gw.Table(), id)
	}

	result := &Result{
		Data: rows[0],
		Meta: &Meta{Collection: gw.Table(), Type: "item", ResultCount: 1},
	}
	s.cache.Set(ctx, key, result,
		cache.TagTable(gw.Table()),
		cache.TagPermissions(gw.Table()),
		cache.TagEntity(gw.Table(), id),
	)
	return result, nil
}

// GetMetadata reads the activity log for one entry. The caller needs read
// access on the entry's collection; the activity rows themselves are read
// through an internal policy.
func (s *Service) GetMetadata(ctx context.Context, a *acl.ACL, collection string, id interface{}) (*Result, error) {
	if _, ok := s.registry.Get(collection); !ok {
		return nil, errs.NotFound("collection %s", collection)
	}
	if err := a.EnforceRead(collection); err != nil {
		return nil, err
	}

	activity, err := gateway.New(schema.CollectionActivity, s.db, s.registry, acl.NewAdmin(nil), hooks.NewEmitter(), s.dialect)
	if err != nil {
		return nil, err
	}

	opts := &query.Options{}
	opts.Where("table_name", collection)
	opts.Where("row_id", id)
	opts.OrderBy("id", true)

	rows, err := activity.Fetch(ctx, opts)
	if err != nil {
		s.reportError(ctx, collection, err)
		return nil, err
	}

	meta := schema.Record{
		"collection":     collection,
		"id":             id,
		"activity_count": len(rows),
	}
	if len(rows) > 0 {
		meta["last_updated_on"] = rows[0]["action_on"]
		meta["created_on"] = rows[len(rows)-1]["action_on"]
	}

	return &Result{
		Data: meta,
		Meta: &Meta{Collection: schema.CollectionActivity, Type: "meta", ResultCount: len(rows)},
	}, nil
}

// reportError feeds failures to the application error hook; reporting never
// masks the original error
func (s *Service) reportError(ctx context.Context, collection string, err error) {
	p := hooks.NewPayload("application.error", collection, nil).WithAttr("error", err)
	if hookErr := s.emitter.RunAction(ctx, "application.error", p); hookErr != nil {
		s.logger.Warn("error hook failed", zap.Error(hookErr))
	}
}

func errMessage(err error) string {
	return err.Error()
}
