package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kestrand/maintchat/internal/config"
	"github.com/kestrand/maintchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)

	client, err := NewClient(config.RedisConfig{Host: srv.Host(), Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRateLimiter_AllowWithinQuota(t *testing.T) {
	client := newTestClient(t)
	limiter := NewRateLimiter(client, 3, 1)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		allowed, remaining, resetAt, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 3-i, remaining)
		assert.False(t, resetAt.IsZero())
	}
}

func TestRateLimiter_DeniesOverQuota(t *testing.T) {
	client := newTestClient(t)
	limiter := NewRateLimiter(client, 2, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, _, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, remaining, _, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	client := newTestClient(t)
	limiter := NewRateLimiter(client, 1, 0)
	ctx := context.Background()

	allowed, _, _, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, allowed)
	allowed, _, _, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, _, _, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_ResetClearsWindow(t *testing.T) {
	client := newTestClient(t)
	limiter := NewRateLimiter(client, 1, 0)
	ctx := context.Background()

	_, _, _, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	allowed, _, _, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, limiter.Reset(ctx, "10.0.0.1"))

	allowed, _, _, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_UnavailableBackend(t *testing.T) {
	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)
	client, err := NewClient(config.RedisConfig{Host: srv.Host(), Port: port})
	require.NoError(t, err)
	srv.Close()

	limiter := NewRateLimiter(client, 1, 0)
	_, _, _, err = limiter.Allow(context.Background(), "10.0.0.1")
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.AsError(err).Kind)
}

func TestRateLimiter_WindowExpires(t *testing.T) {
	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)
	client, err := NewClient(config.RedisConfig{Host: srv.Host(), Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	limiter := NewRateLimiter(client, 1, 0)
	ctx := context.Background()

	allowed, _, _, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, allowed)
	allowed, _, _, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, allowed)

	srv.FastForward(time.Minute + time.Second)

	allowed, _, _, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}
