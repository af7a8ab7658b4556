package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RateLimitStore counts requests in fixed windows, one redis key per
// (caller, window) pair. Callers are provider names for webhook routes
// and tenant ids for authenticated routes.
type RateLimitStore struct {
	client *goredis.Client
	prefix string
}

func NewRateLimitStore(client *goredis.Client) *RateLimitStore {
	return &RateLimitStore{
		client: client,
		prefix: "rl:",
	}
}

// RateLimitResult is the outcome of a single Allow call.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // unix seconds when the current window rolls over
}

// Allow increments the counter for key in the current window and
// reports whether the request stays within limit. The counter key
// expires one second after the window ends so stale windows clean
// themselves up.
func (s *RateLimitStore) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error) {
	windowSecs := int64(window.Seconds())
	idx := time.Now().Unix() / windowSecs
	counterKey := fmt.Sprintf("%s%s:%d", s.prefix, key, idx)

	count, err := s.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit incr: %w", err)
	}
	if count == 1 {
		s.client.Expire(ctx, counterKey, window+time.Second)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   (idx + 1) * windowSecs,
	}, nil
}
