package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jsguru-git/api/internal/acl"
	"github.com/jsguru-git/api/internal/cache"
	"github.com/jsguru-git/api/internal/entries"
	"github.com/jsguru-git/api/internal/gateway"
	"github.com/jsguru-git/api/internal/hooks"
	"github.com/jsguru-git/api/internal/query"
	"github.com/jsguru-git/api/internal/schema"
)

func webRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r := schema.NewRegistry()
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

func editorACL() *acl.ACL {
	a := acl.New(int64(7), "editor")
	a.SetPermission(&acl.Permission{
		Role:       "editor",
		Collection: "notes",
		Create:     acl.LevelFull,
		Read:       acl.LevelFull,
		Update:     acl.LevelFull,
		Delete:     acl.LevelFull,
	})
	return a
}

// newTestRouter mounts the item routes behind a middleware that installs the
// given access policy; a nil policy leaves the public default in place.
func newTestRouter(t *testing.T, a *acl.ACL) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := cache.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	rc := cache.NewResponseCache(store, time.Minute, zap.NewNop())

	svc := entries.New(db, webRegistry(t), hooks.NewEmitter(), rc, gateway.DialectPostgres, zap.NewNop())

	r := chi.NewRouter()
	if a != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(WithACL(req.Context(), a)))
			})
		})
	}
	r.Mount("/items", NewItemsHandler(svc, zap.NewNop()).Routes())
	return r, mock
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) entries.Result {
	t.Helper()
	var result entries.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	return result
}

func TestListReturnsEnvelope(t *testing.T) {
	h, mock := newTestRouter(t, editorACL())

	mock.ExpectQuery(`SELECT id, body FROM notes`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "body"}).AddRow(1, "first"))

	rec := doRequest(t, h, http.MethodGet, "/items/notes", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	result := decodeEnvelope(t, rec)
	rows, ok := result.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, rows, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAppliesQueryParameters(t *testing.T) {
	h, mock := newTestRouter(t, editorACL())

	mock.ExpectQuery(`SELECT id, body FROM notes WHERE id = \$1 ORDER BY id DESC LIMIT 2 OFFSET 4`).
		WithArgs("5").
		WillReturnRows(sqlmock.NewRows([]string{"id", "body"}))

	rec := doRequest(t, h, http.MethodGet, "/items/notes?filter[id]=5&sort=-id&limit=2&offset=4", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReturns201(t *testing.T) {
	h, mock := newTestRouter(t, editorACL())

	mock.ExpectQuery(`INSERT INTO notes \(body\) VALUES \(\$1\) RETURNING body, id`).
		WithArgs("hello").
		WillReturnRows(sqlmock.NewRows([]string{"body", "id"}).AddRow("hello", 3))

	rec := doRequest(t, h, http.MethodPost, "/items/notes", `{"body":"hello"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	result := decodeEnvelope(t, rec)
	created, ok := result.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "hello", created["body"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteReturns204WithoutBody(t *testing.T) {
	h, mock := newTestRouter(t, editorACL())

	mock.ExpectExec(`DELETE FROM notes WHERE id IN \(\$1\)`).
		WithArgs("5").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := doRequest(t, h, http.MethodDelete, "/items/notes/5", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublicCallerGets403(t *testing.T) {
	h, mock := newTestRouter(t, nil)

	rec := doRequest(t, h, http.MethodGet, "/items/notes", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	result := decodeEnvelope(t, rec)
	require.NotNil(t, result.Error)
	assert.NotEmpty(t, result.Error.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMissingEntryGets404(t *testing.T) {
	h, mock := newTestRouter(t, editorACL())

	mock.ExpectQuery(`SELECT id, body FROM notes WHERE id = \$1 LIMIT 1`).
		WithArgs("99").
		WillReturnRows(sqlmock.NewRows([]string{"id", "body"}))

	rec := doRequest(t, h, http.MethodGet, "/items/notes/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidLimitGets400(t *testing.T) {
	h, _ := newTestRouter(t, editorACL())

	rec := doRequest(t, h, http.MethodGet, "/items/notes?limit=nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidBodyGets400(t *testing.T) {
	h, _ := newTestRouter(t, editorACL())

	rec := doRequest(t, h, http.MethodPatch, "/items/notes/5", `{"body":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmptyBatchGets422(t *testing.T) {
	h, _ := newTestRouter(t, editorACL())

	rec := doRequest(t, h, http.MethodPost, "/items/notes/batch", `{"rows":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStoreFailureHidesInternals(t *testing.T) {
	h, mock := newTestRouter(t, editorACL())

	mock.ExpectQuery(`SELECT id, body FROM notes`).
		WillReturnError(sql.ErrConnDone)

	rec := doRequest(t, h, http.MethodGet, "/items/notes", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	result := decodeEnvelope(t, rec)
	require.NotNil(t, result.Error)
	assert.Equal(t, "internal error", result.Error.Message)
	assert.NotContains(t, rec.Body.String(), "driver")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchPartialFailureRides200(t *testing.T) {
	h, mock := newTestRouter(t, editorACL())

	mock.ExpectQuery(`INSERT INTO notes \(body\) VALUES \(\$1\) RETURNING body, id`).
		WithArgs("ok").
		WillReturnRows(sqlmock.NewRows([]string{"body", "id"}).AddRow("ok", 1))
	mock.ExpectQuery(`INSERT INTO notes \(body\) VALUES \(\$1\) RETURNING body, id`).
		WithArgs("bad").
		WillReturnError(sql.ErrConnDone)

	rec := doRequest(t, h, http.MethodPost, "/items/notes/batch",
		`{"rows":[{"body":"ok"},{"body":"bad"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	result := decodeEnvelope(t, rec)
	require.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Message, "1 of 2 rows failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestACLFromDefaultsToPublic(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	a := ACLFrom(req)
	require.NotNil(t, a)
	assert.False(t, a.CanRead("notes"))

	req = req.WithContext(WithACL(context.Background(), editorACL()))
	assert.True(t, ACLFrom(req).CanRead("notes"))
}

func TestParseOptions(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/items/notes?fields=id,body&filter[body][like]=go&filter[id][in]=1,2,3&sort=-id,body&limit=10&offset=5&meta=1", nil)

	opts, err := parseOptions(req)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "body"}, opts.Fields)
	assert.Equal(t, 10, opts.Limit)
	assert.Equal(t, 5, opts.Offset)
	assert.True(t, opts.Meta)

	require.Len(t, opts.Sort, 2)
	assert.Equal(t, "id", opts.Sort[0].Field)
	assert.True(t, opts.Sort[0].Desc)
	assert.Equal(t, "body", opts.Sort[1].Field)
	assert.False(t, opts.Sort[1].Desc)

	byField := map[string]query.Condition{}
	for _, c := range opts.Conditions {
		byField[c.Field] = c
	}
	assert.Equal(t, query.OpLike, byField["body"].Operator)
	assert.Equal(t, query.OpIn, byField["id"].Operator)
	assert.Equal(t, []string{"1", "2", "3"}, byField["id"].Value)
}

func TestParseOptionsRejectsBadInput(t *testing.T) {
	for _, target := range []string{
		"/items/notes?limit=-1",
		"/items/notes?offset=x",
		"/items/notes?filter[a][b][c]=1",
		"/items/notes?filter[id][almost]=1",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		_, err := parseOptions(req)
		assert.Error(t, err, target)
	}
}

func TestParseFilterKey(t *testing.T) {
	field, op, err := parseFilterKey("filter[title]")
	require.NoError(t, err)
	assert.Equal(t, "title", field)
	assert.Empty(t, op)

	field, op, err = parseFilterKey("filter[title][like]")
	require.NoError(t, err)
	assert.Equal(t, "title", field)
	assert.Equal(t, "like", op)

	_, _, err = parseFilterKey("filter[title][like][x]")
	assert.Error(t, err)
}
