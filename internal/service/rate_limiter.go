package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const rateLimitKeyPrefix = "ratelimit:"

// rateLimitScript is a sliding window counter. It returns
// {allowed, remaining, resetAt}.
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = 0
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    else
        resetAt = now + window
    end
    return {0, 0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)

return {1, limit - count - 1, now + window}
`)

type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// CheckLimit records one hit against key. When redis cannot be reached the
// request is allowed: limiting is a guard, not a dependency of the API.
func (rl *RateLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) RateLimitResult {
	now := time.Now()
	fallback := RateLimitResult{Allowed: true, Remaining: limit - 1, ResetAt: now.Add(window)}

	result, err := rateLimitScript.Run(
		ctx,
		rl.client,
		[]string{rateLimitKeyPrefix + key},
		now.Unix(),
		int64(window.Seconds()),
		limit,
	).Int64Slice()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("rate limit check failed, allowing request")
		return fallback
	}
	if len(result) != 3 {
		log.Warn().Str("key", key).Msg("unexpected rate limit result, allowing request")
		return fallback
	}

	return RateLimitResult{
		Allowed:   result[0] == 1,
		Remaining: int(result[1]),
		ResetAt:   time.Unix(result[2], 0),
	}
}
