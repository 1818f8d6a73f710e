package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRateLimit_DisabledOutsideProduction(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	// No client needed when the limiter is off.
	allowed, err := CheckRateLimit(context.Background(), nil, "room_chat", "user:1", 1, time.Minute)
	assert.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckRateLimit_CountsPerCallerAndResource(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := CheckRateLimit(ctx, rdb, "room_chat", "user:1", 3, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := CheckRateLimit(ctx, rdb, "room_chat", "user:1", 3, time.Minute)
	assert.NoError(t, err)
	assert.False(t, allowed)

	// Another caller and another resource keep their own windows.
	allowed, err = CheckRateLimit(ctx, rdb, "room_chat", "user:2", 3, time.Minute)
	assert.NoError(t, err)
	assert.True(t, allowed)
	allowed, err = CheckRateLimit(ctx, rdb, "report", "user:1", 3, time.Minute)
	assert.NoError(t, err)
	assert.True(t, allowed)

	// The window expiring resets the count.
	mr.FastForward(2 * time.Minute)
	allowed, err = CheckRateLimit(ctx, rdb, "room_chat", "user:1", 3, time.Minute)
	assert.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckRateLimit_ErrorsWithoutStore(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	_, err := CheckRateLimit(context.Background(), nil, "room_chat", "user:1", 3, time.Minute)
	assert.Error(t, err)
}
