package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestKV(t *testing.T) (*miniredis.Miniredis, *RedisKV) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisKV(client)
}

func TestRedisKV_GetSetDel(t *testing.T) {
	mr, kv := setupTestKV(t)
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	val, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	require.NoError(t, kv.Del(ctx, "k"))
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	// 空参数不访问 Redis
	assert.NoError(t, kv.Del(ctx))
}

func TestRedisKV_ScanKeys(t *testing.T) {
	_, kv := setupTestKV(t)
	ctx := context.Background()

	for _, k := range []string{"a:1", "a:2", "b:1"} {
		require.NoError(t, kv.Set(ctx, k, "x", 0))
	}

	keys, err := kv.ScanKeys(ctx, "a:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a:1", "a:2"}, keys)
}

func TestRedisKV_ExpiredKeyIsMiss(t *testing.T) {
	mr, kv := setupTestKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k", "v", time.Second))
	mr.FastForward(2 * time.Second)

	_, err := kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}
