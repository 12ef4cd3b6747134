package redis

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseRateLimitKey(t *testing.T) {
	assert.Equal(t, "ratelimit:phase:@alice:example.com", PhaseRateLimitKey("@alice:example.com"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(nil, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow(context.Background(), "@alice:example.com"))
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	// Nothing listens on this port, so every script run errors.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	rl := NewRateLimiter(client, 1)
	assert.True(t, rl.Allow(context.Background(), "@alice:example.com"))
	assert.True(t, rl.Allow(context.Background(), "@alice:example.com"))
}

func TestRateLimiter_EnforcesLimit(t *testing.T) {
	// Needs a local redis; DB 15 is reserved for tests.
	opts, err := redis.ParseURL("redis://localhost:6379/15")
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available for testing: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())
	t.Cleanup(func() { client.FlushDB(context.Background()) })

	const limit = 3
	rl := NewRateLimiter(client, limit)

	for i := 0; i < limit; i++ {
		assert.True(t, rl.Allow(ctx, "@alice:example.com"), "attempt %d should be allowed", i+1)
	}
	assert.False(t, rl.Allow(ctx, "@alice:example.com"), "attempt over the limit should be denied")

	assert.True(t, rl.Allow(ctx, "@bob:example.com"), "other identities keep their own window")

	count, err := client.ZCard(ctx, PhaseRateLimitKey("@alice:example.com")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(limit), count)
}
