package main

import (
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/kestrand/maintchat/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limiterConfig(host string, port int, enabled bool) *config.Config {
	return &config.Config{
		Redis: config.RedisConfig{Host: host, Port: port},
		Security: config.SecurityConfig{
			RateLimit: config.RateLimitConfig{
				Enabled:           enabled,
				RequestsPerMinute: 60,
				Burst:             10,
			},
		},
	}
}

func TestBuildLimiter(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		limiter, cleanup := buildLimiter(limiterConfig("localhost", 6379, false), nil)
		defer cleanup()
		assert.Nil(t, limiter)
	})

	t.Run("dials its own client without a redis session backend", func(t *testing.T) {
		srv := miniredis.RunT(t)
		port, err := strconv.Atoi(srv.Port())
		require.NoError(t, err)

		limiter, cleanup := buildLimiter(limiterConfig(srv.Host(), port, true), nil)
		defer cleanup()
		assert.NotNil(t, limiter)
	})

	t.Run("redis unreachable leaves limiter unwired", func(t *testing.T) {
		limiter, cleanup := buildLimiter(limiterConfig("127.0.0.1", 1, true), nil)
		defer cleanup()
		assert.Nil(t, limiter)
	})
}
