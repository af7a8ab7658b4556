package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonceStore_CheckAndSet_NewEvent(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := NewNonceStore(client)
	ctx := context.Background()

	ok, err := store.CheckAndSet(ctx, "acmepay", "evt-abc", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "unseen event id should return true")
}

func TestNonceStore_CheckAndSet_ReplayedEvent(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := NewNonceStore(client)
	ctx := context.Background()

	// First delivery
	ok, err := store.CheckAndSet(ctx, "acmepay", "evt-xyz", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Retry
	ok, err = store.CheckAndSet(ctx, "acmepay", "evt-xyz", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "replayed event id should return false")
}

func TestNonceStore_CheckAndSet_DifferentProviders(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := NewNonceStore(client)
	ctx := context.Background()

	// Same event id, different providers
	ok1, err := store.CheckAndSet(ctx, "acmepay", "evt-123", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok1)

	ok2, err := store.CheckAndSet(ctx, "betterpay", "evt-123", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok2, "same event id under a different provider should be valid")
}

func TestNonceStore_CheckAndSet_ExpiredClaim(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := NewNonceStore(client)
	ctx := context.Background()

	ok, err := store.CheckAndSet(ctx, "acmepay", "evt-expire", 1*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// Fast-forward past TTL
	s.FastForward(2 * time.Second)

	ok, err = store.CheckAndSet(ctx, "acmepay", "evt-expire", 1*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired claim should be accepted again")
}
