// Package ratelimit throttles mutating circulation calls per client.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "librarydesk:ratelimit"

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// FixedWindowLimiter counts hits per key in fixed windows stored in Redis,
// so several circulation replicas share one budget.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	client *redis.Client
	prefix string
}

// NewRedisFixedWindowLimiter creates a Redis-backed limiter.
func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &FixedWindowLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
	}, nil
}

// Allow reports whether key is within quota. Redis failures fail closed.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	if windowMs <= 0 {
		return true
	}
	slot := l.now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64()
	if err != nil {
		return false
	}
	return count <= int64(l.limit)
}

// Ping checks the Redis connection. The circulation service calls it at startup
// so a dead Redis fails the boot instead of turning every mutation into a 429.
func (l *FixedWindowLimiter) Ping(ctx context.Context) error {
	if l == nil || l.client == nil {
		return errors.New("rate limiter not initialized")
	}
	return l.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (l *FixedWindowLimiter) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}
