// Package ratelimit is a fixed-window request counter per visitor IP kept in
// Redis so every instance shares it.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// incrWithExpiry sets the window expiry only on the first hit, so a rejected
// request never extends the window.
var incrWithExpiry = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`)

type Limiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
}

func New(client *redis.Client, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{redis: client, limit: int64(limit), window: window}
}

// Allow counts one request from ip and reports whether it is within the
// limit. Concurrent first hits may both observe a fresh window; the counter
// itself stays exact.
func (l *Limiter) Allow(ctx context.Context, ip string) (bool, error) {
	count, err := incrWithExpiry.Run(ctx, l.redis, []string{key(ip)}, int(l.window.Seconds())).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}
	return count <= l.limit, nil
}

func key(ip string) string {
	return "ratelimit:" + ip
}
