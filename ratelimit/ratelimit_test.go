package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	return redis.NewClient(&redis.Options{Addr: s.Addr()}), s
}

func TestAllowWithinWindow(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := New(client, 5, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		ok, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should pass", i)
	}

	ok, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok, "sixth request should be rejected")

	ok, err = l.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, ok, "other IPs have their own window")
}

func TestWindowExpiry(t *testing.T) {
	client, s := setupTestRedis(t)
	l := New(client, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
	}
	assert.Equal(t, time.Minute, s.TTL(key("1.2.3.4")), "rejections do not extend the window")

	s.FastForward(61 * time.Second)

	ok, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok, "window resets after expiry")
}

func TestAllowStoreError(t *testing.T) {
	client, s := setupTestRedis(t)
	l := New(client, 5, time.Minute)
	s.Close()

	_, err := l.Allow(context.Background(), "1.2.3.4")
	assert.Error(t, err)
}
