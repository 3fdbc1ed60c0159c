package gateway

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsguru-git/api/internal/acl"
	"github.com/jsguru-git/api/internal/hooks"
	"github.com/jsguru-git/api/internal/query"
	"github.com/jsguru-git/api/internal/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r := schema.NewRegistry()

	posts := &schema.Collection{
		Name:       "posts",
		PrimaryKey: "id",
		Fields: []*schema.Field{
			{Name: "id", Kind: schema.KindNumber},
			{Name: "title", Kind: schema.KindString},
			{Name: "owner", Kind: schema.KindNumber},
			{Name: "author", Kind: schema.KindRelation, Relation: &schema.Relation{
				Collection:  "authors",
				JoinColumn:  "author",
				Cardinality: schema.ManyToOne,
			}},
			{Name: "comments", Kind: schema.KindRelation, Relation: &schema.Relation{
				Collection:  "comments",
				JoinColumn:  "post_id",
				Cardinality: schema.OneToMany,
			}},
		},
		StatusField:      "status",
		SoftDeleteValue:  "deleted",
		UserCreatedField: "owner",
	}
	// posts carries a status column in its field list too
	posts.Fields = append(posts.Fields, &schema.Field{Name: "status", Kind: schema.KindString})
	require.NoError(t, r.Register(posts))

	require.NoError(t, r.Register(&schema.Collection{
		Name:       "authors",
		PrimaryKey: "id",
		Fields: []*schema.Field{
			{Name: "id", Kind: schema.KindNumber},
			{Name: "name", Kind: schema.KindString},
		},
	}))

	require.NoError(t, r.Register(&schema.Collection{
		Name:       "comments",
		PrimaryKey: "id",
		Fields: []*schema.Field{
			{Name: "id", Kind: schema.KindNumber},
			{Name: "post_id", Kind: schema.KindNumber},
			{Name: "body", Kind: schema.KindString},
		},
	}))

	require.NoError(t, r.Register(&schema.Collection{
		Name:       "notes",
		PrimaryKey: "id",
		Fields: []*schema.Field{
			{Name: "id", Kind: schema.KindNumber},
			{Name: "body", Kind: schema.KindString},
		},
	}))

	return r
}

func fullAccess(collections ...string) *acl.ACL {
	a := acl.New(int64(7), "editor")
	for _, c := range collections {
		a.SetPermission(&acl.Permission{
			Role:       "editor",
			Collection: c,
			Create:     acl.LevelFull,
			Read:       acl.LevelFull,
			Update:     acl.LevelFull,
			Delete:     acl.LevelFull,
		})
	}
	return a
}

func newTestGateway(t *testing.T, name string, db *sql.DB, a *acl.ACL) *Gateway {
	t.Helper()
	g, err := New(name, db, testRegistry(t), a, hooks.NewEmitter(), DialectPostgres)
	require.NoError(t, err)
	return g
}

func TestNewUnknownCollection(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = New("missing", db, testRegistry(t), fullAccess(), hooks.NewEmitter(), DialectPostgres)
	require.Error(t, err)
}

func TestFetchDeniedWithoutStoreAccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// no permission on posts at all
	g := newTestGateway(t, "posts", db, acl.New(int64(7), "editor"))

	_, err = g.Fetch(context.Background(), nil)
	require.Error(t, err)

	// no SQL may have been issued
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := newTestGateway(t, "posts", db, fullAccess("posts"))

	mock.ExpectQuery(`SELECT id, title, owner, author, status FROM posts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "owner", "author", "status"}).
			AddRow(1, "First", 7, nil, "published").
			AddRow(2, "Second", 8, nil, "published"))

	rows, err := g.Fetch(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "First", rows[0]["title"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchPushesOwnershipPredicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	a := acl.New(int64(7), "editor")
	a.SetPermission(&acl.Permission{
		Role:       "editor",
		Collection: "posts",
		Read:       acl.LevelMine,
	})
	g := newTestGateway(t, "posts", db, a)

	mock.ExpectQuery(`SELECT .+ FROM posts WHERE owner = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "owner", "author", "status"}).
			AddRow(1, "Mine", 7, nil, "published"))

	rows, err := g.Fetch(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := newTestGateway(t, "posts", db, fullAccess("posts"))

	mock.ExpectQuery(`SELECT .+ FROM posts WHERE id = \$1`).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "owner", "author", "status"}))

	_, err = g.FetchByID(context.Background(), 99)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchExpandsManyToOne(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := newTestGateway(t, "posts", db, fullAccess("posts", "authors"))

	mock.ExpectQuery(`SELECT id, title, author FROM posts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "author"}).
			AddRow(1, "First", 10).
			AddRow(2, "Second", 10))

	mock.ExpectQuery(`SELECT id, name FROM authors WHERE id IN \(\$1\)`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(10, "Ada"))

	opts := &query.Options{Fields: []string{"title", "author"}}
	rows, err := g.Fetch(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	author, ok := rows[0]["author"].(schema.Record)
	require.True(t, ok)
	assert.Equal(t, "Ada", author["name"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchExpandsOneToMany(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := newTestGateway(t, "posts", db, fullAccess("posts", "comments"))

	mock.ExpectQuery(`SELECT id, title FROM posts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).
			AddRow(1, "First").
			AddRow(2, "Second"))

	mock.ExpectQuery(`SELECT id, post_id, body FROM comments WHERE post_id IN \(\$1, \$2\)`).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "post_id", "body"}).
			AddRow(100, 1, "nice").
			AddRow(101, 1, "thanks"))

	opts := &query.Options{Fields: []string{"title", "comments"}}
	rows, err := g.Fetch(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first, ok := rows[0]["comments"].([]schema.Record)
	require.True(t, ok)
	assert.Len(t, first, 2)

	// rows without children still carry an empty list
	second, ok := rows[1]["comments"].([]schema.Record)
	require.True(t, ok)
	assert.Empty(t, second)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertReturnsGeneratedKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := newTestGateway(t, "notes", db, fullAccess("notes"))

	mock.ExpectQuery(`INSERT INTO notes \(id, body\) VALUES \(\$1, \$2\) RETURNING body, id`).
		WithArgs(5, "hello").
		WillReturnRows(sqlmock.NewRows([]string{"body", "id"}).AddRow("hello", 5))

	record, err := g.Insert(context.Background(), schema.Record{"id": 5, "body": "hello"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), record["id"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDenied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := newTestGateway(t, "notes", db, acl.NewPublic())

	_, err = g.Insert(context.Background(), schema.Record{"body": "hello"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateReturnsChangedCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := newTestGateway(t, "notes", db, fullAccess("notes"))

	mock.ExpectQuery(`SELECT id FROM notes WHERE id = \$1`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectExec(`UPDATE notes SET body = \$1 WHERE id IN \(\$2\)`).
		WithArgs("updated", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := g.Update(context.Background(),
		schema.Record{"body": "updated"},
		map[string]interface{}{"id": 5})
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRejectsForeignRowsUnderMine(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	a := acl.New(int64(7), "editor")
	a.SetPermission(&acl.Permission{
		Role:       "editor",
		Collection: "posts",
		Read:       acl.LevelFull,
		Update:     acl.LevelMine,
	})
	g := newTestGateway(t, "posts", db, a)

	mock.ExpectQuery(`SELECT id, owner FROM posts WHERE id = \$1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner"}).AddRow(1, 8))

	_, err = g.Update(context.Background(),
		schema.Record{"title": "hijack"},
		map[string]interface{}{"id": 1})
	require.Error(t, err)

	// the ownership check happened before any UPDATE
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteByIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := newTestGateway(t, "notes", db, fullAccess("notes"))

	mock.ExpectExec(`DELETE FROM notes WHERE id IN \(\$1, \$2\)`).
		WithArgs(1, 2).
		WillReturnResult(sqlmock.NewResult(0, 2))

	changed, err := g.DeleteByIDs(context.Background(), []interface{}{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteByIDsEmptyShortCircuits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := newTestGateway(t, "notes", db, fullAccess("notes"))

	changed, err := g.DeleteByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, changed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteRequiresStatusField(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// notes has no status column
	g := newTestGateway(t, "notes", db, fullAccess("notes"))

	_, err = g.SoftDelete(context.Background(), 5)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteSetsStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := newTestGateway(t, "posts", db, fullAccess("posts"))

	mock.ExpectQuery(`SELECT id, owner FROM posts WHERE id = \$1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner"}).AddRow(1, 7))
	mock.ExpectExec(`UPDATE posts SET status = \$1 WHERE id IN \(\$2\)`).
		WithArgs("deleted", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := g.SoftDelete(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCollectionRecordsRowErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := newTestGateway(t, "notes", db, fullAccess("notes"))

	mock.ExpectQuery(`SELECT id FROM notes WHERE id = \$1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(`UPDATE notes SET body = \$1 WHERE id IN \(\$2\)`).
		WithArgs("one", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(`SELECT id FROM notes WHERE id = \$1`).
		WithArgs(2).
		WillReturnError(sql.ErrConnDone)

	result, err := g.UpdateCollection(context.Background(), []schema.Record{
		{"id": 1, "body": "one"},
		{"id": 2, "body": "two"},
	})
	require.NoError(t, err)
	assert.Len(t, result.IDs, 1)
	assert.Len(t, result.Errors, 1)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := newTestGateway(t, "posts", db, fullAccess("posts"))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM posts WHERE status = \$1`).
		WithArgs("published").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	opts := &query.Options{}
	opts.Where("status", "published")
	total, err := g.Count(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 12, total)

	assert.NoError(t, mock.ExpectationsWereMet())
}
