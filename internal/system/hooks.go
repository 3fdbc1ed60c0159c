// Package system wires the built-in hook subscriptions: stamping, credential
// hashing, mutation guards, field codecs, user redaction, file URL
// derivation, cache invalidation, and translation re-indexing. Everything
// here rides the same emitter application hooks use, at the documented
// priorities.
package system

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jsguru-git/api/internal/acl"
	"github.com/jsguru-git/api/internal/auth"
	"github.com/jsguru-git/api/internal/cache"
	"github.com/jsguru-git/api/internal/codec"
	"github.com/jsguru-git/api/internal/errs"
	"github.com/jsguru-git/api/internal/files"
	"github.com/jsguru-git/api/internal/gateway"
	"github.com/jsguru-git/api/internal/hooks"
	"github.com/jsguru-git/api/internal/schema"
)

// Hooks holds the collaborators the built-in subscriptions need
type Hooks struct {
	registry *schema.Registry
	db       *sql.DB
	dialect  gateway.Dialect
	cache    *cache.ResponseCache
	urls     *files.URLResolver
	logger   *zap.Logger

	// lookups runs internal policy reads without re-entering the
	// application hook chain
	lookups *hooks.Emitter
}

// NewHooks creates the built-in subscription set
func NewHooks(
	registry *schema.Registry,
	db *sql.DB,
	dialect gateway.Dialect,
	responseCache *cache.ResponseCache,
	urls *files.URLResolver,
	logger *zap.Logger,
) *Hooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hooks{
		registry: registry,
		db:       db,
		dialect:  dialect,
		cache:    responseCache,
		urls:     urls,
		logger:   logger,
		lookups:  hooks.NewEmitter(),
	}
}

// Register subscribes every built-in listener on the emitter
func (h *Hooks) Register(e *hooks.Emitter) {
	// mutation guards run before anything mutates the payload
	e.AddAction(hooks.QualifyEvent("collection.insert:before", schema.CollectionUserRoles), h.guardUserRoles, hooks.PriorityHigh)
	e.AddAction(hooks.QualifyEvent("collection.update:before", schema.CollectionUserRoles), h.guardUserRoles, hooks.PriorityHigh)
	e.AddAction(hooks.QualifyEvent("collection.delete:before", schema.CollectionUserRoles), h.guardUserRoles, hooks.PriorityHigh)
	e.AddFilter(hooks.QualifyEvent("collection.insert:before", schema.CollectionUserRoles), h.guardPublicRole, hooks.PriorityHigh)
	e.AddFilter(hooks.QualifyEvent("collection.update:before", schema.CollectionUserRoles), h.guardPublicRole, hooks.PriorityHigh)
	e.AddAction(hooks.QualifyEvent("collection.insert:before", schema.CollectionFiles), h.guardFiles, hooks.PriorityHigh)
	e.AddAction(hooks.QualifyEvent("collection.update:before", schema.CollectionFiles), h.guardFiles, hooks.PriorityHigh)
	e.AddAction(hooks.QualifyEvent("collection.delete:before", schema.CollectionFiles), h.guardFiles, hooks.PriorityHigh)

	// payload shaping
	e.AddFilter("collection.insert:before", h.stampOnInsert, hooks.PriorityDefault)
	e.AddFilter("collection.update:before", h.stampOnUpdate, hooks.PriorityDefault)
	e.AddFilter(hooks.QualifyEvent("collection.insert:before", schema.CollectionUsers), h.setExternalID, hooks.PriorityDefault)
	e.AddFilter(hooks.QualifyEvent("collection.insert:before", schema.CollectionRoles), h.setExternalID, hooks.PriorityDefault)
	e.AddFilter("collection.insert:before", h.hashPasswords, hooks.PriorityDefault)
	e.AddFilter("collection.update:before", h.hashPasswords, hooks.PriorityDefault)

	// codecs run last on the way in, first on the way out
	e.AddFilter("collection.insert:before", h.encodeFields, hooks.PriorityLow)
	e.AddFilter("collection.update:before", h.encodeFields, hooks.PriorityLow)
	e.AddFilter("collection.select", h.decodeFields, hooks.PriorityHigh)

	// read shaping
	e.AddFilter(hooks.QualifyEvent("collection.select", schema.CollectionFiles), h.appendFileURLs, hooks.PriorityDefault)
	e.AddFilter(hooks.QualifyEvent("collection.select", schema.CollectionUsers), h.redactUsers, hooks.PriorityLow)

	// relation expansion
	e.AddFilter("load.relational.onetomany", h.reindexTranslations, hooks.PriorityDefault)

	// cache invalidation
	e.AddAction("collection.insert:after", h.invalidateOnInsert, hooks.PriorityLow)
	e.AddAction("collection.update:after", h.invalidateOnUpdate, hooks.PriorityLow)
	e.AddAction("collection.delete:after", h.invalidateOnDelete, hooks.PriorityLow)

	// error reporting
	e.AddAction("application.error", h.logError, hooks.PriorityLow)
}

// stampOnInsert fills the created/modified date and user bindings. User
// stamps are skipped for the users collection itself, which has no author.
func (h *Hooks) stampOnInsert(ctx context.Context, p *hooks.Payload) (*hooks.Payload, error) {
	c, ok := h.registry.Get(p.Collection())
	if !ok {
		return p, nil
	}

	now := time.Now().UTC()
	if c.DateCreatedField != "" && !p.Has(c.DateCreatedField) {
		p.Set(c.DateCreatedField, now)
	}
	if c.DateModifiedField != "" && !p.Has(c.DateModifiedField) {
		p.Set(c.DateModifiedField, now)
	}

	if c.Name == schema.CollectionUsers {
		return p, nil
	}
	if userID := callerID(p); userID != nil {
		if c.UserCreatedField != "" && !p.Has(c.UserCreatedField) {
			p.Set(c.UserCreatedField, userID)
		}
		if c.UserModifiedField != "" && !p.Has(c.UserModifiedField) {
			p.Set(c.UserModifiedField, userID)
		}
	}
	return p, nil
}

// stampOnUpdate refreshes the modified date and user bindings
func (h *Hooks) stampOnUpdate(ctx context.Context, p *hooks.Payload) (*hooks.Payload, error) {
	c, ok := h.registry.Get(p.Collection())
	if !ok {
		return p, nil
	}

	if c.DateModifiedField != "" {
		p.Set(c.DateModifiedField, time.Now().UTC())
	}
	if c.UserModifiedField != "" {
		if userID := callerID(p); userID != nil {
			p.Set(c.UserModifiedField, userID)
		}
	}
	return p, nil
}

// setExternalID assigns a uuid external id when the record has none
func (h *Hooks) setExternalID(ctx context.Context, p *hooks.Payload) (*hooks.Payload, error) {
	if v, ok := p.Get("external_id").(string); !p.Has("external_id") || (ok && v == "") {
		p.Set("external_id", uuid.NewString())
	}
	return p, nil
}

// hashPasswords bcrypt-hashes the users password column and any
// password-interface field on non-system collections. Already-hashed values
// pass through so partial updates never double-hash.
func (h *Hooks) hashPasswords(ctx context.Context, p *hooks.Payload) (*hooks.Payload, error) {
	c, ok := h.registry.Get(p.Collection())
	if !ok {
		return p, nil
	}

	var targets []string
	if c.Name == schema.CollectionUsers {
		targets = append(targets, "password")
	} else if !schema.IsSystem(c.Name) {
		for _, f := range c.Fields {
			if f.Interface == "password" {
				targets = append(targets, f.Name)
			}
		}
	}

	for _, name := range targets {
		plain, ok := p.Get(name).(string)
		if !ok || plain == "" || auth.IsHashed(plain) {
			continue
		}
		hashed, err := auth.HashPassword(plain)
		if err != nil {
			return nil, errs.Validation("cannot hash %s: %v", name, err)
		}
		p.Set(name, hashed)
	}
	return p, nil
}

// guardUserRoles rejects any role-assignment mutation from non-admins
func (h *Hooks) guardUserRoles(ctx context.Context, p *hooks.Payload) error {
	a := callerACL(p)
	if a == nil || !a.IsAdmin() {
		return errs.Forbidden("only administrators may modify role assignments")
	}
	return nil
}

// guardPublicRole rejects assignments of the reserved public role. The role
// row is resolved through an internal admin read.
func (h *Hooks) guardPublicRole(ctx context.Context, p *hooks.Payload) (*hooks.Payload, error) {
	roleID := p.Get("role")
	if roleID == nil {
		return p, nil
	}

	roles, err := gateway.New(schema.CollectionRoles, h.db, h.registry, acl.NewAdmin(nil), h.lookups, h.dialect)
	if err != nil {
		return p, nil
	}
	role, err := roles.FetchByID(ctx, roleID)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.Validation("role %v does not exist", roleID)
		}
		return nil, err
	}
	if name, _ := role["name"].(string); name == "public" {
		return nil, errs.Forbidden("the public role cannot be assigned")
	}
	return p, nil
}

// guardFiles requires files update permission for any files mutation
func (h *Hooks) guardFiles(ctx context.Context, p *hooks.Payload) error {
	a := callerACL(p)
	if a == nil || !a.CanUpdate(schema.CollectionFiles) {
		return errs.Forbidden("not allowed to modify files")
	}
	return nil
}

// encodeFields applies the json/array codecs before a write
func (h *Hooks) encodeFields(ctx context.Context, p *hooks.Payload) (*hooks.Payload, error) {
	c, ok := h.registry.Get(p.Collection())
	if !ok {
		return p, nil
	}
	for _, record := range p.Data {
		if err := codec.EncodeRecord(c, record); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// decodeFields applies the json/array/boolean codecs after a read
func (h *Hooks) decodeFields(ctx context.Context, p *hooks.Payload) (*hooks.Payload, error) {
	c, ok := h.registry.Get(p.Collection())
	if !ok {
		return p, nil
	}
	for _, record := range p.Data {
		if err := codec.DecodeRecord(c, record); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// appendFileURLs adds derived url fields to file rows on read
func (h *Hooks) appendFileURLs(ctx context.Context, p *hooks.Payload) (*hooks.Payload, error) {
	if h.urls == nil {
		return p, nil
	}
	for _, record := range p.Data {
		h.urls.AppendURLs(record)
	}
	return p, nil
}

// redactUsers strips credentials and private columns from user rows. The
// password never leaves. Token, notification and activity columns survive
// only for admins or the user's own row.
func (h *Hooks) redactUsers(ctx context.Context, p *hooks.Payload) (*hooks.Payload, error) {
	c, ok := h.registry.Get(schema.CollectionUsers)
	if !ok {
		return p, nil
	}
	a := callerACL(p)

	for _, record := range p.Data {
		delete(record, "password")
		if a != nil && (a.IsAdmin() || ownRow(a, c, record)) {
			continue
		}
		delete(record, "token")
		delete(record, "email_notifications")
		delete(record, "last_access")
		delete(record, "last_page")
	}
	return p, nil
}

// reindexTranslations rewrites translation rows so the gateway can key them
// by language code instead of list position. Expanded language objects
// collapse to their primary key.
func (h *Hooks) reindexTranslations(ctx context.Context, p *hooks.Payload) (*hooks.Payload, error) {
	field, ok := p.Attr("column").(*schema.Field)
	if !ok || field.Relation == nil || field.Relation.LanguagesCollection == "" {
		return p, nil
	}
	rel := field.Relation

	langPK := "id"
	if lang, ok := h.registry.Get(rel.LanguagesCollection); ok {
		langPK = lang.PrimaryKey
	}

	for _, record := range p.Data {
		raw, ok := record[rel.LanguageCodeColumn]
		if !ok || raw == nil {
			continue
		}
		var code string
		switch v := raw.(type) {
		case schema.Record:
			code = fmt.Sprintf("%v", v[langPK])
			record[rel.LanguageCodeColumn] = v[langPK]
		case map[string]interface{}:
			code = fmt.Sprintf("%v", v[langPK])
			record[rel.LanguageCodeColumn] = v[langPK]
		default:
			code = fmt.Sprintf("%v", v)
		}
		record[hooks.RelationIndexField] = code
	}
	return p, nil
}

// invalidateOnInsert evicts list responses for the collection
func (h *Hooks) invalidateOnInsert(ctx context.Context, p *hooks.Payload) error {
	tags := []string{cache.TagTable(p.Collection())}
	if p.Collection() == schema.CollectionPermissions {
		tags = append(tags, permissionTags(p.Record())...)
	}
	h.cache.Invalidate(ctx, tags...)
	return nil
}

// invalidateOnUpdate evicts the changed entity and its collection lists
func (h *Hooks) invalidateOnUpdate(ctx context.Context, p *hooks.Payload) error {
	tags := []string{cache.TagTable(p.Collection())}
	if id := p.Attr("id"); id != nil {
		tags = append(tags, cache.TagEntity(p.Collection(), id))
	}
	if p.Collection() == schema.CollectionPermissions {
		tags = append(tags, permissionTags(p.Record())...)
	}
	h.cache.Invalidate(ctx, tags...)
	return nil
}

// invalidateOnDelete evicts every removed entity and the collection lists
func (h *Hooks) invalidateOnDelete(ctx context.Context, p *hooks.Payload) error {
	tags := []string{cache.TagTable(p.Collection())}
	if ids, ok := p.Attr("ids").([]interface{}); ok {
		for _, id := range ids {
			tags = append(tags, cache.TagEntity(p.Collection(), id))
		}
	}
	h.cache.Invalidate(ctx, tags...)
	return nil
}

// logError reports application errors through the structured logger and
// never fails
func (h *Hooks) logError(ctx context.Context, p *hooks.Payload) error {
	fields := []zap.Field{zap.String("collection", p.Collection())}
	if err, ok := p.Attr("error").(error); ok {
		fields = append(fields, zap.Error(err))
	}
	if msg, ok := p.Attr("message").(string); ok {
		fields = append(fields, zap.String("message", msg))
	}
	h.logger.Error("application error", fields...)
	return nil
}

// permissionTags derives the permission invalidation tags from a
// permissions row
func permissionTags(record schema.Record) []string {
	if record == nil {
		return nil
	}
	if coll, ok := record["collection"].(string); ok && coll != "" {
		return []string{cache.TagPermissions(coll)}
	}
	return nil
}

func callerACL(p *hooks.Payload) *acl.ACL {
	a, _ := p.Attr("acl").(*acl.ACL)
	return a
}

func callerID(p *hooks.Payload) interface{} {
	if a := callerACL(p); a != nil {
		return a.UserID()
	}
	return nil
}

// ownRow reports whether a user row belongs to the caller
func ownRow(a *acl.ACL, c *schema.Collection, record schema.Record) bool {
	if a.UserID() == nil {
		return false
	}
	return fmt.Sprintf("%v", record[c.PrimaryKey]) == fmt.Sprintf("%v", a.UserID())
}
