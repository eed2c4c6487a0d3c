package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a Redis-backed sliding window rate limiter, shared by
// every server instance using the same Redis.
type RedisLimiter struct {
	client    redis.Cmdable
	keyPrefix string
	rate      int
	window    time.Duration
	now       func() time.Time
}

// RedisConfig holds Redis rate limiter configuration.
type RedisConfig struct {
	// Client is the Redis client to use.
	Client redis.Cmdable

	// KeyPrefix is the prefix for all rate limit keys.
	// Defaults to "codevault:ratelimit:".
	KeyPrefix string

	// Rate is the number of requests allowed per window.
	Rate int

	// Window is the time window for the rate limit.
	Window time.Duration
}

// NewRedisLimiter creates a new Redis-backed rate limiter.
func NewRedisLimiter(cfg *RedisConfig) *RedisLimiter {
	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "codevault:ratelimit:"
	}

	return &RedisLimiter{
		client:    cfg.Client,
		keyPrefix: keyPrefix,
		rate:      cfg.Rate,
		window:    cfg.Window,
		now:       time.Now,
	}
}

// slidingWindowScript keeps one sorted-set member per request, scored by
// its time in microseconds.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[3])
local n = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[1])

local count = redis.call('ZCARD', key)
if count + n > rate then
  return 0
end

for i = 1, n do
  local seq = redis.call('INCR', key .. ':seq')
  redis.call('ZADD', key, ARGV[2], ARGV[2] .. ':' .. seq)
end
redis.call('PEXPIRE', key, ARGV[5])
redis.call('PEXPIRE', key .. ':seq', ARGV[5])
return 1
`)

// Allow checks if a request is allowed for the given key.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return r.AllowN(ctx, key, 1)
}

// AllowN checks if n requests are allowed for the given key.
func (r *RedisLimiter) AllowN(ctx context.Context, key string, n int) (bool, error) {
	now := r.now()

	result, err := slidingWindowScript.Run(ctx, r.client, []string{r.keyPrefix + key},
		now.Add(-r.window).UnixMicro(),
		now.UnixMicro(),
		r.rate,
		n,
		r.window.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis rate limit script failed: %w", err)
	}

	return result == 1, nil
}

// Reset resets the rate limit for the given key.
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	redisKey := r.keyPrefix + key
	return r.client.Del(ctx, redisKey, redisKey+":seq").Err()
}

// Close is a no-op; the client is managed by the caller.
func (r *RedisLimiter) Close() error {
	return nil
}

// ResetTime returns when the oldest request in the window expires.
func (r *RedisLimiter) ResetTime(ctx context.Context, key string) time.Time {
	now := r.now()
	oldest, err := r.client.ZRangeWithScores(ctx, r.keyPrefix+key, 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return now.Add(r.window)
	}
	return time.UnixMicro(int64(oldest[0].Score)).Add(r.window)
}

// Remaining returns the number of requests left in the key's window.
func (r *RedisLimiter) Remaining(ctx context.Context, key string) (int, error) {
	redisKey := r.keyPrefix + key
	windowStart := r.now().Add(-r.window).UnixMicro()

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	remaining := r.rate - int(countCmd.Val())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}
