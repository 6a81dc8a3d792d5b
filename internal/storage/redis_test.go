package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisStorage(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStorageWithClient(client, "test:"), mr
}

func TestRedisStorage(t *testing.T) {
	runStorageContract(t, func(t *testing.T) Storage {
		store, _ := newMiniredisStorage(t)
		return store
	})
}

func TestRedisStorageKeysAndTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newMiniredisStorage(t)

	require.NoError(t, store.PutCode(ctx, &AuthorizationCode{
		Code:      "abc",
		ClientID:  "client123",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}))

	assert.True(t, mr.Exists("test:code:abc"))
	ttl := mr.TTL("test:code:abc")
	assert.Greater(t, ttl, 9*time.Minute)
	assert.LessOrEqual(t, ttl, 10*time.Minute)

	mr.FastForward(11 * time.Minute)
	_, err := store.GetCode(ctx, "abc")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestRedisStorageTokenExpiresInRedis(t *testing.T) {
	ctx := context.Background()
	store, mr := newMiniredisStorage(t)

	require.NoError(t, store.PutToken(ctx, &AccessToken{Token: "t", ExpiresAt: time.Now().Add(time.Hour)}))
	_, err := store.GetToken(ctx, "t")
	require.NoError(t, err)

	mr.FastForward(time.Hour + time.Second)
	_, err = store.GetToken(ctx, "t")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRedisStorageCleanupIsNoop(t *testing.T) {
	store, _ := newMiniredisStorage(t)
	n, err := store.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestNewRedisStorage(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewRedisStorage(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	assert.Equal(t, DefaultKeyPrefix, store.keyPrefix)

	_, err = NewRedisStorage(context.Background(), RedisConfig{})
	assert.Error(t, err)
}

func TestNewRedisStorageGivesUp(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStorage(context.Background(), RedisConfig{Addr: addr, MaxElapsedTime: 200 * time.Millisecond})
	assert.Error(t, err)
}
