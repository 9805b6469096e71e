package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedThing struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func withMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	SetClient(rdb)
	t.Cleanup(func() {
		SetClient(nil)
		_ = rdb.Close()
	})
	return mr
}

func TestAside_NoRedisCallsLoader(t *testing.T) {
	SetClient(nil)
	calls := 0
	var got cachedThing
	err := Aside(context.Background(), "k", &got, time.Minute, func() error {
		calls++
		got = cachedThing{ID: 1, Name: "one"}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "one", got.Name)
}

func TestAside_MissThenHit(t *testing.T) {
	mr := withMiniredis(t)
	ctx := context.Background()
	calls := 0
	load := func(dest *cachedThing) func() error {
		return func() error {
			calls++
			*dest = cachedThing{ID: 9, Name: "nine"}
			return nil
		}
	}

	var first cachedThing
	require.NoError(t, Aside(ctx, UserKey(9), &first, time.Minute, load(&first)))
	assert.True(t, mr.Exists("user:9"))
	assert.True(t, mr.TTL("user:9") > 0)

	var second cachedThing
	require.NoError(t, Aside(ctx, UserKey(9), &second, time.Minute, load(&second)))
	assert.Equal(t, 1, calls, "second read must be served from redis")
	assert.Equal(t, first, second)

	InvalidateUser(ctx, 9)
	assert.False(t, mr.Exists("user:9"))
}

func TestAside_LoaderErrorIsNotCached(t *testing.T) {
	mr := withMiniredis(t)
	boom := errors.New("boom")

	var got cachedThing
	err := Aside(context.Background(), "thing", &got, time.Minute, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("thing"))
}

func TestAside_CorruptEntryIsReloaded(t *testing.T) {
	mr := withMiniredis(t)
	require.NoError(t, mr.Set("thing", "{not json"))

	var got cachedThing
	err := Aside(context.Background(), "thing", &got, time.Minute, func() error {
		got = cachedThing{ID: 2, Name: "two"}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "two", got.Name)

	raw, err := mr.Get("thing")
	require.NoError(t, err)
	assert.Contains(t, raw, `"two"`)
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions("localhost:6379")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	opts, err = ParseOptions("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)

	_, err = ParseOptions("redis://bad host")
	assert.Error(t, err)
}
