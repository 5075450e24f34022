package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result carries an Allow decision back to the caller, following the
// shape used by the pack's Redis sliding-window recipe.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Config describes one sliding window: how many requests are allowed
// per window duration.
type Config struct {
	Window            time.Duration
	RequestsPerWindow int
}

// RedisLimiter is a Redis sorted-set sliding window limiter, shared
// across process restarts and instances so a REST client or webhook
// sender can't reset its budget by reconnecting. Grounded on the
// ZREMRANGEBYSCORE/ZCARD/ZADD/PEXPIRE Lua script pattern, with an
// atomic INCR counter to keep sorted-set members unique under
// concurrent requests landing in the same millisecond.
type RedisLimiter struct {
	client *redis.Client
	config Config
	prefix string
	script *redis.Script
}

func NewRedisLimiter(client *redis.Client, config Config, prefix string) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		config: config,
		prefix: prefix,
		script: redis.NewScript(slidingWindowScript),
	}
}

const slidingWindowScript = `
local key = KEYS[1]
local counter_key = KEYS[2]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local window_size_ms = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

local count = redis.call('ZCARD', key)

if count < limit then
	local counter = redis.call('INCR', counter_key)
	redis.call('ZADD', key, now, now .. ':' .. counter)
	redis.call('PEXPIRE', key, window_size_ms)
	redis.call('PEXPIRE', counter_key, window_size_ms)
	return {1, limit - count - 1, 0}
else
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry_after = 0
	if #oldest >= 2 then
		retry_after = oldest[2] + window_size_ms - now
	end
	return {0, 0, retry_after}
end
`

// Allow checks and records a request under key (typically a client
// IP or webhook endpoint name) against this limiter's window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now()
	windowStart := now.Add(-l.config.Window)
	redisKey := l.prefix + key
	counterKey := redisKey + ":counter"

	raw, err := l.script.Run(ctx, l.client, []string{redisKey, counterKey},
		now.UnixMilli(),
		windowStart.UnixMilli(),
		l.config.RequestsPerWindow,
		l.config.Window.Milliseconds(),
	).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: run sliding window script: %w", err)
	}
	if len(raw) < 3 {
		return Result{}, fmt.Errorf("ratelimit: unexpected script result length %d", len(raw))
	}

	allowed, _ := raw[0].(int64)
	remaining, _ := raw[1].(int64)
	retryAfterMs, _ := raw[2].(int64)

	return Result{
		Allowed:    allowed == 1,
		Remaining:  int(remaining),
		RetryAfter: time.Duration(retryAfterMs) * time.Millisecond,
	}, nil
}
