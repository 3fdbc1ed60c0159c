package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhereSQL(t *testing.T) {
	opts := &Options{}
	opts.Where("status", "published").WhereOp("views", OpGreaterThan, 10)

	counter := 1
	where, args, err := opts.WhereSQL(&counter)
	require.NoError(t, err)
	assert.Equal(t, "status = $1 AND views > $2", where)
	assert.Equal(t, []interface{}{"published", 10}, args)
	assert.Equal(t, 3, counter)
}

func TestWhereSQLInExpansion(t *testing.T) {
	opts := &Options{}
	opts.WhereIn("id", []interface{}{1, 2, 3})

	counter := 1
	where, args, err := opts.WhereSQL(&counter)
	require.NoError(t, err)
	assert.Equal(t, "id IN ($1, $2, $3)", where)
	assert.Len(t, args, 3)
}

func TestWhereSQLEmptyInMatchesNothing(t *testing.T) {
	opts := &Options{}
	opts.WhereIn("id", nil)

	counter := 1
	where, args, err := opts.WhereSQL(&counter)
	require.NoError(t, err)
	assert.Equal(t, "1 = 0", where)
	assert.Empty(t, args)
}

func TestWhereSQLEmptyNotInMatchesEverything(t *testing.T) {
	opts := &Options{}
	opts.WhereOp("id", OpNotIn, []interface{}{})

	counter := 1
	where, _, err := opts.WhereSQL(&counter)
	require.NoError(t, err)
	assert.Equal(t, "1 = 1", where)
}

func TestWhereSQLAcceptsStringAndIntLists(t *testing.T) {
	opts := &Options{}
	opts.WhereOp("slug", OpIn, []string{"a", "b"})

	counter := 1
	where, args, err := opts.WhereSQL(&counter)
	require.NoError(t, err)
	assert.Equal(t, "slug IN ($1, $2)", where)
	assert.Equal(t, []interface{}{"a", "b"}, args)

	opts = &Options{}
	opts.WhereOp("id", OpIn, []int{4, 5})
	counter = 1
	_, args, err = opts.WhereSQL(&counter)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{4, 5}, args)
}

func TestWhereSQLCounterContinues(t *testing.T) {
	opts := &Options{}
	opts.Where("a", 1)

	// a caller already consumed two placeholders
	counter := 3
	where, _, err := opts.WhereSQL(&counter)
	require.NoError(t, err)
	assert.Equal(t, "a = $3", where)
}

func TestOrderSQL(t *testing.T) {
	opts := &Options{}
	opts.OrderBy("created_at", true).OrderBy("title", false)
	assert.Equal(t, "created_at DESC, title ASC", opts.OrderSQL())

	assert.Empty(t, (&Options{}).OrderSQL())
}

func TestParseOperator(t *testing.T) {
	op, err := ParseOperator("")
	require.NoError(t, err)
	assert.Equal(t, OpEqual, op)

	op, err = ParseOperator("nin")
	require.NoError(t, err)
	assert.Equal(t, OpNotIn, op)

	_, err = ParseOperator("between")
	require.Error(t, err)
}

func TestCanonicalIsDeterministic(t *testing.T) {
	a := &Options{Fields: []string{"b", "a"}, Limit: 10, Offset: 5, Meta: true}
	a.Where("status", "published")

	b := &Options{Fields: []string{"a", "b"}, Limit: 10, Offset: 5, Meta: true}
	b.Where("status", "published")

	// field order does not change the fingerprint
	assert.Equal(t, a.Canonical(), b.Canonical())
}

func TestCanonicalDistinguishesQueries(t *testing.T) {
	a := &Options{}
	a.Where("status", "published")

	b := &Options{}
	b.Where("status", "draft")

	assert.NotEqual(t, a.Canonical(), b.Canonical())

	c := &Options{Limit: 10}
	d := &Options{Limit: 20}
	assert.NotEqual(t, c.Canonical(), d.Canonical())
}
