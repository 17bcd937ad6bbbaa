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

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func TestAside_MissThenHit(t *testing.T) {
	t.Parallel()
	c, mr := newTestCache(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *[]string) func() error {
		return func() error {
			calls++
			*dest = []string{"p1", "p2"}
			return nil
		}
	}

	var first []string
	require.NoError(t, c.Aside(ctx, TrendingKey(10), &first, time.Minute, fetch(&first)))
	assert.Equal(t, []string{"p1", "p2"}, first)
	assert.True(t, mr.Exists(TrendingKey(10)))

	var second []string
	require.NoError(t, c.Aside(ctx, TrendingKey(10), &second, time.Minute, fetch(&second)))
	assert.Equal(t, []string{"p1", "p2"}, second)
	assert.Equal(t, 1, calls, "second read is served from redis")

	mr.FastForward(2 * time.Minute)
	var third []string
	require.NoError(t, c.Aside(ctx, TrendingKey(10), &third, time.Minute, fetch(&third)))
	assert.Equal(t, 2, calls, "expired entry is refetched")
}

func TestAside_FetchErrorIsNotCached(t *testing.T) {
	t.Parallel()
	c, mr := newTestCache(t)

	var dest []string
	boom := errors.New("boom")
	err := c.Aside(context.Background(), "k", &dest, time.Minute, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("k"))
}

func TestAside_NilClientFallsThrough(t *testing.T) {
	t.Parallel()
	c := New(nil)
	assert.False(t, c.Enabled())

	var dest int
	require.NoError(t, c.Aside(context.Background(), "k", &dest, time.Minute, func() error {
		dest = 7
		return nil
	}))
	assert.Equal(t, 7, dest)
	c.Invalidate(context.Background(), "k")
}

func TestInvalidate(t *testing.T) {
	t.Parallel()
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, TrendingKey(5), []string{"a"}, time.Minute))
	c.Invalidate(ctx, TrendingKey(5))
	assert.False(t, mr.Exists(TrendingKey(5)))
}

func TestConnect_UnreachableReturnsNil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Connect("redis://:bad@127.0.0.1:1/0"))
}
