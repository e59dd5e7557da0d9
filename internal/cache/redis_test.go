package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis answers commands from a map using go-redis result constructors.
type fakeRedis struct {
	data   map[string]string
	ttls   map[string]time.Duration
	err    error
	closed bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, f.err)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedisCache_RoundTrip(t *testing.T) {
	rdb := newFakeRedis()
	c := NewRedis(rdb)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "universe:deal:1", []byte(`{"id":"1"}`), 5*time.Minute))
	assert.Equal(t, 5*time.Minute, rdb.ttls["universe:deal:1"])

	val, ok, err := c.Get(ctx, "universe:deal:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":"1"}`, string(val))

	require.NoError(t, c.Delete(ctx, "universe:deal:1"))
	_, ok, err = c.Get(ctx, "universe:deal:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_Errors(t *testing.T) {
	rdb := newFakeRedis()
	rdb.err = errors.New("connection refused")
	c := NewRedis(rdb)
	ctx := context.Background()

	_, _, err := c.Get(ctx, "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache: redis get k")

	err = c.Set(ctx, "k", []byte("v"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache: redis set k")
}

func TestRedisCache_DeleteNoKeys(t *testing.T) {
	c := NewRedis(newFakeRedis())
	assert.NoError(t, c.Delete(context.Background()))
}

func TestRedisCache_Close(t *testing.T) {
	rdb := newFakeRedis()
	require.NoError(t, NewRedis(rdb).Close())
	assert.True(t, rdb.closed)
}
