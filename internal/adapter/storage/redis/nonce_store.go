package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// NonceStore implements ports.NonceStore using Redis SET NX. Keys are
// scoped per provider so two providers may reuse the same event id.
type NonceStore struct {
	client *goredis.Client
	prefix string
}

// NewNonceStore creates a new Redis-backed nonce store.
func NewNonceStore(client *goredis.Client) *NonceStore {
	return &NonceStore{
		client: client,
		prefix: "nonce:",
	}
}

// CheckAndSet atomically claims a provider event id. The SET NX is the
// check-and-insert in one round trip: two concurrent retries cannot both
// observe "not seen". Returns true if the id was unseen, false if a
// delivery already claimed it.
func (s *NonceStore) CheckAndSet(ctx context.Context, provider string, eventID string, ttl time.Duration) (bool, error) {
	key := s.prefix + provider + ":" + eventID
	result, err := s.client.SetArgs(ctx, key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			// Key already exists — event id was already seen
			return false, nil
		}
		return false, fmt.Errorf("redis nonce check: %w", err)
	}
	return result == "OK", nil
}
