// Package ratelimit counts events per key in fixed one-minute windows.
package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "topframe:rl:authorize:"
	window    = time.Minute
)

// Limiter caps events per key per minute using Redis if available.
type Limiter struct {
	cache     *redis.Client
	maxPerMin int
}

// New returns a limiter allowing maxPerMin events per key. A nil cache
// allows everything.
func New(cache *redis.Client, maxPerMin int) *Limiter {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return &Limiter{cache: cache, maxPerMin: maxPerMin}
}

// Allow records one event for key and reports whether it fits in the current
// window. Cache errors are returned together with true so callers fail open.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.cache == nil {
		return true, nil
	}
	k := keyPrefix + strings.ToLower(key)
	cnt, err := l.cache.Incr(ctx, k).Result()
	if err != nil {
		return true, err
	}
	if cnt == 1 {
		l.cache.Expire(ctx, k, window)
	}
	return cnt <= int64(l.maxPerMin), nil
}
