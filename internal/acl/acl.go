// Package acl implements the per-request access control policy. Permission
// levels scope each CRUD verb to nothing (NONE), rows owned by the current
// user (MINE), or all rows (FULL). Decisions are evaluated fresh per request
// and never cached, so role and permission changes take immediate effect.
package acl

import (
	"github.com/jsguru-git/api/internal/errs"
	"github.com/jsguru-git/api/internal/schema"
)

// Level represents a permission level for one CRUD verb
type Level int

const (
	// LevelNone grants no access
	LevelNone Level = iota
	// LevelMine restricts access to rows owned by the current user
	LevelMine
	// LevelFull grants unconditional access
	LevelFull
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelMine:
		return "mine"
	case LevelFull:
		return "full"
	default:
		return "unknown"
	}
}

// Permission holds the levels and field blacklists for one (role, collection)
type Permission struct {
	Role       string
	Collection string

	Create Level
	Read   Level
	Update Level
	Delete Level

	ReadFieldBlacklist  []string
	WriteFieldBlacklist []string
}

// ACL carries the resolved identity and permissions for one request
type ACL struct {
	userID      interface{}
	role        string
	admin       bool
	public      bool
	permissions map[string]*Permission
}

// New creates an ACL for an authenticated user
func New(userID interface{}, role string) *ACL {
	return &ACL{
		userID:      userID,
		role:        role,
		permissions: make(map[string]*Permission),
	}
}

// NewAdmin creates an ACL with unrestricted access
func NewAdmin(userID interface{}) *ACL {
	a := New(userID, "admin")
	a.admin = true
	return a
}

// NewPublic creates an ACL for an unauthenticated caller
func NewPublic() *ACL {
	a := New(nil, "public")
	a.public = true
	return a
}

// SetPermission sets the permission for a collection
func (a *ACL) SetPermission(p *Permission) {
	a.permissions[p.Collection] = p
}

// UserID returns the current user id, or nil for public callers
func (a *ACL) UserID() interface{} {
	return a.userID
}

// Role returns the current role name
func (a *ACL) Role() string {
	return a.role
}

// IsAdmin returns true if the current role is unrestricted
func (a *ACL) IsAdmin() bool {
	return a.admin
}

// IsPublic returns true if the caller is unauthenticated
func (a *ACL) IsPublic() bool {
	return a.public
}

// Level returns the permission level for the given verb on a collection.
// Unknown collections default to NONE for non-admins.
func (a *ACL) Level(collection, verb string) Level {
	if a.admin {
		return LevelFull
	}

	p, ok := a.permissions[collection]
	if !ok {
		return LevelNone
	}

	switch verb {
	case "create":
		return p.Create
	case "read":
		return p.Read
	case "update":
		return p.Update
	case "delete":
		return p.Delete
	default:
		return LevelNone
	}
}

// CanCreate returns true if the caller may create rows in the collection
func (a *ACL) CanCreate(collection string) bool {
	return a.Level(collection, "create") > LevelNone
}

// CanRead returns true if the caller may read any rows of the collection
func (a *ACL) CanRead(collection string) bool {
	return a.Level(collection, "read") > LevelNone
}

// CanUpdate returns true if the caller may update any rows of the collection
func (a *ACL) CanUpdate(collection string) bool {
	return a.Level(collection, "update") > LevelNone
}

// CanDelete returns true if the caller may delete any rows of the collection
func (a *ACL) CanDelete(collection string) bool {
	return a.Level(collection, "delete") > LevelNone
}

// EnforceCreate rejects with a forbidden error unless creation is allowed
func (a *ACL) EnforceCreate(collection string) error {
	if !a.CanCreate(collection) {
		return errs.Forbidden("not allowed to create in %s", collection)
	}
	return nil
}

// EnforceRead rejects with a forbidden error unless reading is allowed
func (a *ACL) EnforceRead(collection string) error {
	if !a.CanRead(collection) {
		return errs.Forbidden("not allowed to read %s", collection)
	}
	return nil
}

// EnforceUpdate rejects with a forbidden error unless updating is allowed
func (a *ACL) EnforceUpdate(collection string) error {
	if !a.CanUpdate(collection) {
		return errs.Forbidden("not allowed to update %s", collection)
	}
	return nil
}

// EnforceDelete rejects with a forbidden error unless deleting is allowed
func (a *ACL) EnforceDelete(collection string) error {
	if !a.CanDelete(collection) {
		return errs.Forbidden("not allowed to delete %s", collection)
	}
	return nil
}

// OwnsRecord reports whether the record's owner field binds to the current
// user. Collections without a user-created binding cannot satisfy MINE.
func (a *ACL) OwnsRecord(c *schema.Collection, record schema.Record) bool {
	if a.userID == nil || c.UserCreatedField == "" {
		return false
	}
	owner, ok := record[c.UserCreatedField]
	if !ok {
		return false
	}
	return equalIDs(owner, a.userID)
}

// CanReadRecord applies the row-level read check for MINE permissions
func (a *ACL) CanReadRecord(c *schema.Collection, record schema.Record) bool {
	switch a.Level(c.Name, "read") {
	case LevelFull:
		return true
	case LevelMine:
		return a.OwnsRecord(c, record)
	default:
		return false
	}
}

// EnforceUpdateRecord applies the row-level update check for MINE permissions
func (a *ACL) EnforceUpdateRecord(c *schema.Collection, record schema.Record) error {
	switch a.Level(c.Name, "update") {
	case LevelFull:
		return nil
	case LevelMine:
		if a.OwnsRecord(c, record) {
			return nil
		}
	}
	return errs.Forbidden("not allowed to update this record in %s", c.Name)
}

// EnforceDeleteRecord applies the row-level delete check for MINE permissions
func (a *ACL) EnforceDeleteRecord(c *schema.Collection, record schema.Record) error {
	switch a.Level(c.Name, "delete") {
	case LevelFull:
		return nil
	case LevelMine:
		if a.OwnsRecord(c, record) {
			return nil
		}
	}
	return errs.Forbidden("not allowed to delete this record in %s", c.Name)
}

// OwnershipFilter returns the (column, user id) pair to push into a fetch
// filter when the read level is MINE. The second return is false when no
// ownership predicate applies.
func (a *ACL) OwnershipFilter(c *schema.Collection) (string, interface{}, bool) {
	if a.Level(c.Name, "read") != LevelMine {
		return "", nil, false
	}
	if c.UserCreatedField == "" || a.userID == nil {
		return "", nil, false
	}
	return c.UserCreatedField, a.userID, true
}

// FilterReadFields removes read-blacklisted fields from a record in place
func (a *ACL) FilterReadFields(collection string, record schema.Record) {
	if a.admin {
		return
	}
	p, ok := a.permissions[collection]
	if !ok {
		return
	}
	for _, field := range p.ReadFieldBlacklist {
		delete(record, field)
	}
}

// FilterWriteFields removes write-blacklisted fields from a record in place
func (a *ACL) FilterWriteFields(collection string, record schema.Record) {
	if a.admin {
		return
	}
	p, ok := a.permissions[collection]
	if !ok {
		return
	}
	for _, field := range p.WriteFieldBlacklist {
		delete(record, field)
	}
}

// equalIDs compares two primary-key values across the integer and string
// representations drivers return
func equalIDs(a, b interface{}) bool {
	if a == b {
		return true
	}
	return normalizeID(a) == normalizeID(b)
}

func normalizeID(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case []byte:
		return string(n)
	default:
		return v
	}
}
