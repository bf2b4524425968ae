package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles inbound triggers per webhook configuration with a
// Redis sliding window. A sorted set per configuration holds one member per
// recent trigger; a Lua script atomically evicts, counts, and admits so the
// limit holds across replicas.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	script      *redis.Script
	window      time.Duration
}

// 1. Drop entries older than the window
// 2. Count what remains
// 3. Under the limit: record this trigger and return 1 (allowed)
// 4. At the limit: return 0 (denied)
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, window / 1000 + 1)
    return 1
else
    return 0
end
`)

func NewRateLimiter(redisClient *redis.Client, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      slidingWindowScript,
		window:      time.Second,
	}
}

func rlKey(webhookID string) string {
	return fmt.Sprintf("rl:webhook:%s", webhookID)
}

// Allow reports whether a trigger for this configuration is within its rate
// limit. A limit of zero or less means unlimited, and Redis failures fail
// open so a broken limiter never drops deliveries.
func (rl *RateLimiter) Allow(ctx context.Context, webhookID string, limit int) bool {
	if limit <= 0 {
		return true
	}

	result, err := rl.script.Run(ctx, rl.redisClient, []string{rlKey(webhookID)},
		time.Now().UnixMilli(), rl.window.Milliseconds(), limit, uuid.NewString(),
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err, "webhook_id", webhookID)
		return true
	}

	if result == 0 {
		rl.logger.Debug("trigger rate limited", "webhook_id", webhookID, "limit", limit)
		return false
	}

	return true
}
