package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var submitRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisSubmitRateLimiter implements distributed per-customer submission
// throttling using Redis.
type RedisSubmitRateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

func NewRedisSubmitRateLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisSubmitRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "modernbank:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	if window <= 0 {
		window = time.Minute
	}

	return &RedisSubmitRateLimiter{
		client: client,
		prefix: trimmedPrefix,
		limit:  limit,
		window: window,
	}
}

// Allow reports whether the customer may submit another transfer in the current
// window.
func (r *RedisSubmitRateLimiter) Allow(ctx context.Context, customerID string) (bool, error) {
	if r == nil || r.client == nil || r.limit <= 0 {
		return true, nil
	}

	subject := strings.TrimSpace(customerID)
	if subject == "" {
		return true, nil
	}

	windowMs := r.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:transfer_submit:%s", r.prefix, subject)
	rawResult, err := submitRateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return false, err
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 2 {
		return false, fmt.Errorf("unexpected redis limiter response shape: %T", rawResult)
	}

	currentCount, ok := values[0].(int64)
	if !ok {
		return false, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}

	return currentCount <= int64(r.limit), nil
}
