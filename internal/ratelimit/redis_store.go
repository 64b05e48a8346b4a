package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript increments the window counter and applies the block in one
// round trip, so the check and the increment are atomic across processes.
//
// Returns {count, windowTTLms, blockTTLms}; count is -1 when the key was
// already blocked.
var consumeScript = redis.NewScript(`
local points = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local block = tonumber(ARGV[3])

local blocked = redis.call('PTTL', KEYS[2])
if blocked > 0 then
  return {-1, 0, blocked}
end

local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], window)
  ttl = window
end

if count > points and block > 0 then
  redis.call('SET', KEYS[2], '1', 'PX', block)
  redis.call('DEL', KEYS[1])
  return {count, ttl, block}
end
return {count, ttl, 0}
`)

// RedisStore shares bucket state between processes through Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

// RedisConfig describes how to reach Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.Prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: strings.TrimSuffix(prefix, ":")}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Consume(ctx context.Context, key string, cfg TierConfig, now time.Time) (Result, error) {
	counterKey := fmt.Sprintf("%s:%s", s.prefix, key)
	blockKey := counterKey + ":block"

	vals, err := consumeScript.Run(ctx, s.client,
		[]string{counterKey, blockKey},
		cfg.Points, cfg.Window.Milliseconds(), cfg.Block.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("redis consume: %w", err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("redis consume: unexpected reply length %d", len(vals))
	}

	count, windowTTL, blockTTL := vals[0], time.Duration(vals[1])*time.Millisecond, time.Duration(vals[2])*time.Millisecond

	switch {
	case count < 0, blockTTL > 0:
		return Result{Limit: cfg.Points, ResetAt: now.Add(blockTTL), RetryAfter: blockTTL}, nil
	case count > int64(cfg.Points):
		return Result{Limit: cfg.Points, ResetAt: now.Add(windowTTL), RetryAfter: windowTTL}, nil
	default:
		return Result{
			Allowed:   true,
			Limit:     cfg.Points,
			Remaining: cfg.Points - int(count),
			ResetAt:   now.Add(windowTTL),
		}, nil
	}
}
