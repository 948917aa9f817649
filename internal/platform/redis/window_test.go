// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/lms/internal/platform/redis"
)

func newFixedWindow(t *testing.T) (*redis.FixedWindow, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return redis.NewFixedWindow(client, "ratelimit:"), server
}

/*
TestFixedWindow_Hit checks that hits accumulate under the prefixed key and
that later hits in the same window leave the original expiry alone.
*/
func TestFixedWindow_Hit(t *testing.T) {
	counter, server := newFixedWindow(t)
	ctx := context.Background()
	window := time.Minute

	count, resetIn, err := counter.Hit(ctx, "login:203.0.113.7", window)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, window, resetIn)

	assert.True(t, server.Exists("ratelimit:login:203.0.113.7"))
	assert.Equal(t, window, server.TTL("ratelimit:login:203.0.113.7"))

	server.FastForward(20 * time.Second)

	count, resetIn, err = counter.Hit(ctx, "login:203.0.113.7", window)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 40*time.Second, resetIn)
	assert.Equal(t, 40*time.Second, server.TTL("ratelimit:login:203.0.113.7"))
}

/*
TestFixedWindow_Expiry checks that the counter starts over once the window
has elapsed.
*/
func TestFixedWindow_Expiry(t *testing.T) {
	counter, server := newFixedWindow(t)
	ctx := context.Background()
	window := 10 * time.Second

	for range 3 {
		_, _, err := counter.Hit(ctx, "register:198.51.100.4", window)
		require.NoError(t, err)
	}

	server.FastForward(window)
	assert.False(t, server.Exists("ratelimit:register:198.51.100.4"))

	count, resetIn, err := counter.Hit(ctx, "register:198.51.100.4", window)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, window, resetIn)
}

// TestFixedWindow_KeysAreIndependent checks that scopes and addresses do not share counters.
func TestFixedWindow_KeysAreIndependent(t *testing.T) {
	counter, _ := newFixedWindow(t)
	ctx := context.Background()

	for range 2 {
		_, _, err := counter.Hit(ctx, "login:203.0.113.7", time.Minute)
		require.NoError(t, err)
	}

	count, _, err := counter.Hit(ctx, "login:203.0.113.8", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, _, err = counter.Hit(ctx, "forgot:203.0.113.7", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

// TestFixedWindow_Unavailable checks that a dead server surfaces as an error, not a zero count.
func TestFixedWindow_Unavailable(t *testing.T) {
	counter, server := newFixedWindow(t)
	server.Close()

	_, _, err := counter.Hit(context.Background(), "login:203.0.113.7", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ratelimit_hit")
}
