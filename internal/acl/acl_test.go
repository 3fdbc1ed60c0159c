package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsguru-git/api/internal/errs"
	"github.com/jsguru-git/api/internal/schema"
)

func postsCollection() *schema.Collection {
	return &schema.Collection{
		Name:       "posts",
		PrimaryKey: "id",
		Fields: []*schema.Field{
			{Name: "id", Kind: schema.KindNumber},
			{Name: "owner", Kind: schema.KindNumber},
		},
		UserCreatedField: "owner",
	}
}

func TestUnknownCollectionDefaultsToNone(t *testing.T) {
	a := New(int64(1), "editor")
	assert.Equal(t, LevelNone, a.Level("posts", "read"))
	assert.False(t, a.CanRead("posts"))
}

func TestAdminIsAlwaysFull(t *testing.T) {
	a := NewAdmin(int64(1))
	assert.Equal(t, LevelFull, a.Level("anything", "delete"))
	assert.True(t, a.IsAdmin())
	require.NoError(t, a.EnforceDelete("anything"))
}

func TestEnforceReturnsForbidden(t *testing.T) {
	a := NewPublic()
	err := a.EnforceCreate("posts")
	require.Error(t, err)
	assert.True(t, errs.IsForbidden(err))
}

func TestLevelsPerVerb(t *testing.T) {
	a := New(int64(1), "editor")
	a.SetPermission(&Permission{
		Role:       "editor",
		Collection: "posts",
		Create:     LevelFull,
		Read:       LevelFull,
		Update:     LevelMine,
		Delete:     LevelNone,
	})

	assert.True(t, a.CanCreate("posts"))
	assert.True(t, a.CanRead("posts"))
	assert.True(t, a.CanUpdate("posts"))
	assert.False(t, a.CanDelete("posts"))
}

func TestOwnsRecord(t *testing.T) {
	c := postsCollection()
	a := New(int64(7), "editor")

	assert.True(t, a.OwnsRecord(c, schema.Record{"owner": int64(7)}))
	// drivers hand back different integer widths for the same value
	assert.True(t, a.OwnsRecord(c, schema.Record{"owner": 7}))
	assert.True(t, a.OwnsRecord(c, schema.Record{"owner": float64(7)}))
	assert.False(t, a.OwnsRecord(c, schema.Record{"owner": int64(8)}))
	assert.False(t, a.OwnsRecord(c, schema.Record{}))
}

func TestOwnsRecordWithoutBinding(t *testing.T) {
	c := postsCollection()
	c.UserCreatedField = ""
	a := New(int64(7), "editor")
	assert.False(t, a.OwnsRecord(c, schema.Record{"owner": int64(7)}))

	assert.False(t, NewPublic().OwnsRecord(postsCollection(), schema.Record{"owner": nil}))
}

func TestMineRecordChecks(t *testing.T) {
	c := postsCollection()
	a := New(int64(7), "editor")
	a.SetPermission(&Permission{
		Role:       "editor",
		Collection: "posts",
		Read:       LevelMine,
		Update:     LevelMine,
		Delete:     LevelMine,
	})

	mine := schema.Record{"owner": int64(7)}
	theirs := schema.Record{"owner": int64(8)}

	assert.True(t, a.CanReadRecord(c, mine))
	assert.False(t, a.CanReadRecord(c, theirs))

	require.NoError(t, a.EnforceUpdateRecord(c, mine))
	assert.True(t, errs.IsForbidden(a.EnforceUpdateRecord(c, theirs)))
	require.NoError(t, a.EnforceDeleteRecord(c, mine))
	assert.True(t, errs.IsForbidden(a.EnforceDeleteRecord(c, theirs)))
}

func TestOwnershipFilter(t *testing.T) {
	c := postsCollection()

	mine := New(int64(7), "editor")
	mine.SetPermission(&Permission{Role: "editor", Collection: "posts", Read: LevelMine})
	col, owner, ok := mine.OwnershipFilter(c)
	require.True(t, ok)
	assert.Equal(t, "owner", col)
	assert.Equal(t, int64(7), owner)

	full := New(int64(7), "editor")
	full.SetPermission(&Permission{Role: "editor", Collection: "posts", Read: LevelFull})
	_, _, ok = full.OwnershipFilter(c)
	assert.False(t, ok)
}

func TestFieldBlacklists(t *testing.T) {
	a := New(int64(7), "editor")
	a.SetPermission(&Permission{
		Role:                "editor",
		Collection:          "posts",
		Read:                LevelFull,
		Update:              LevelFull,
		ReadFieldBlacklist:  []string{"secret"},
		WriteFieldBlacklist: []string{"owner"},
	})

	record := schema.Record{"title": "hi", "secret": "x", "owner": 1}
	a.FilterReadFields("posts", record)
	assert.NotContains(t, record, "secret")
	assert.Contains(t, record, "owner")

	record = schema.Record{"title": "hi", "owner": 2}
	a.FilterWriteFields("posts", record)
	assert.NotContains(t, record, "owner")
	assert.Contains(t, record, "title")
}

func TestBlacklistsSkipAdmins(t *testing.T) {
	a := NewAdmin(int64(1))
	record := schema.Record{"secret": "x"}
	a.FilterReadFields("posts", record)
	assert.Contains(t, record, "secret")
}
