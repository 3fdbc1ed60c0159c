package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStoreWithClient(client, DefaultConfig())
}

func TestRedisStoreGetSet(t *testing.T) {
	r := newRedisStore(t)
	ctx := context.Background()

	_, err := r.Get(ctx, "missing")
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Minute))
	value, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)

	exists, err := r.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRedisStoreDelete(t *testing.T) {
	r := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, r.Delete(ctx, "k"))

	_, err := r.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisStoreInvalidateTags(t *testing.T) {
	r := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "a", []byte("1"), time.Minute, "table_posts", "entity_posts_1"))
	require.NoError(t, r.Set(ctx, "b", []byte("2"), time.Minute, "table_posts"))
	require.NoError(t, r.Set(ctx, "c", []byte("3"), time.Minute, "table_comments"))

	removed, err := r.InvalidateTags(ctx, "table_posts")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = r.Get(ctx, "a")
	assert.True(t, IsCacheMiss(err))
	_, err = r.Get(ctx, "b")
	assert.True(t, IsCacheMiss(err))

	_, err = r.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestRedisStoreInvalidateByEntityTag(t *testing.T) {
	r := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "a", []byte("1"), time.Minute, "table_posts", "entity_posts_1"))
	require.NoError(t, r.Set(ctx, "b", []byte("2"), time.Minute, "table_posts", "entity_posts_2"))

	removed, err := r.InvalidateTags(ctx, "entity_posts_1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = r.Get(ctx, "b")
	assert.NoError(t, err)
}

func TestRedisStoreClear(t *testing.T) {
	r := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, r.Clear(ctx))

	_, err := r.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}
