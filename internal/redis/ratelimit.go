package redis

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const rateLimitWindow = 60 * time.Second

var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    return {0, 0}
end

redis.call('ZADD', key, now, member)
redis.call('EXPIRE', key, window + 10)

return {1, limit - count - 1}
`)

// RateLimiter is a sliding one-minute window per identity, shared by every
// gateway replica through redis.
type RateLimiter struct {
	client redis.Scripter
	limit  int
}

func NewRateLimiter(client redis.Scripter, limitPerMin int) *RateLimiter {
	return &RateLimiter{client: client, limit: limitPerMin}
}

// Allow records one attempt for mxid. Redis failures fail open.
func (rl *RateLimiter) Allow(ctx context.Context, mxid string) bool {
	if rl.limit <= 0 {
		return true
	}

	now := time.Now()
	key := PhaseRateLimitKey(mxid)
	// Redis reseeds math.random identically per script run, so the member
	// has to come from here to keep attempts in the same second distinct.
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(rand.Uint64(), 36)

	result, err := rateLimitScript.Run(ctx, rl.client, []string{key}, now.Unix(), int64(rateLimitWindow.Seconds()), rl.limit, member).Int64Slice()
	if err != nil {
		log.Warn().Err(err).Str("mxid", mxid).Msg("redis rate limit check failed, allowing request")
		return true
	}

	if len(result) != 2 {
		log.Warn().Str("mxid", mxid).Msg("unexpected redis rate limit result")
		return true
	}

	return result[0] == 1
}
