package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisLimiter is a sliding-window limiter backed by a Redis sorted set per
// key, so every server instance shares one counter.
type RedisLimiter struct {
	client *redis.Client
	config *Config
	clock  Clock
	prefix string
}

// slidingWindowScript trims the window, counts it, and adds the attempt only
// when under the limit. It returns {allowed, count, oldestScoreMillis}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  return {0, count, tonumber(oldest[2])}
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return {1, count + 1, 0}
`)

func NewRedis(client *redis.Client, cfg *Config) *RedisLimiter {
	cfg = cfg.withDefaults()
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &RedisLimiter{client: client, config: cfg, clock: clock, prefix: "courtside:ratelimit:"}
}

// NewRedisClient connects and pings the configured server.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return client, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.clock.Now().UnixMilli()
	windowMillis := l.config.Window.Milliseconds()

	raw, err := slidingWindowScript.Run(ctx, l.client,
		[]string{hashKey(l.prefix, key)},
		now, windowMillis, l.config.Limit, strconv.FormatInt(now, 10)+"-"+uuid.NewString(),
	).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("redis rate limit: %w", err)
	}
	if len(raw) != 3 {
		return Result{}, fmt.Errorf("redis rate limit: unexpected reply %v", raw)
	}

	allowed, _ := raw[0].(int64)
	count, _ := raw[1].(int64)
	oldest, _ := raw[2].(int64)
	if allowed == 1 {
		return Result{Allowed: true, Remaining: l.config.Limit - int(count)}, nil
	}

	retryAfter := time.Duration(oldest+windowMillis-now) * time.Millisecond
	if retryAfter <= 0 {
		retryAfter = time.Millisecond
	}
	return Result{Allowed: false, RetryAfter: retryAfter}, nil
}
