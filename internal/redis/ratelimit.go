package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/opd-token-allocation/internal/ratelimit"
)

// fixed window: the first hit in a window sets the expiry; returns {count, pttl}
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

// RateLimiter is a fixed-window limiter shared by every api-server instance
// pointing at the same Redis.
type RateLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
}

func NewRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string) *RateLimiter {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "opd:rl"
	}
	return &RateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix}
}

var _ ratelimit.Limiter = (*RateLimiter)(nil)

func (rl *RateLimiter) Allow(ctx context.Context, key string) (ratelimit.Decision, error) {
	res, err := fixedWindowScript.Run(ctx, rl.rdb, []string{rl.prefix + ":" + key}, rl.window.Milliseconds()).Result()
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("rate limit script: %w", err)
	}

	count, ttl, err := parseWindowResult(res)
	if err != nil {
		return ratelimit.Decision{}, err
	}
	if count <= int64(rl.limit) {
		return ratelimit.Decision{Allowed: true}, nil
	}

	retry := time.Duration(ttl) * time.Millisecond
	if ttl < 0 {
		retry = rl.window
	}
	return ratelimit.Decision{Allowed: false, RetryAfter: retry}, nil
}

func parseWindowResult(res any) (count, ttlMillis int64, err error) {
	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script result %T", res)
	}
	if count, err = toInt64(vals[0]); err != nil {
		return 0, 0, err
	}
	if ttlMillis, err = toInt64(vals[1]); err != nil {
		return 0, 0, err
	}
	return count, ttlMillis, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis value type %T", v)
	}
}
