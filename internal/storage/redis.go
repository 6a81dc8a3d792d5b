package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"github.com/dgellow/codegrant/internal/log"
)

// Ensure RedisStorage implements required interfaces
var _ Storage = (*RedisStorage)(nil)

// Default timeouts for Redis operations
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
	DefaultKeyPrefix    = "codegrant:"
)

// Key types for Redis storage
const (
	keyCode    = "code"
	keyToken   = "token"
	keyPending = "pending"
)

// RedisConfig configures a connection to a single Redis endpoint
type RedisConfig struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string

	// MaxElapsedTime bounds how long NewRedisStorage retries the initial ping
	MaxElapsedTime time.Duration
}

// RedisStorage keeps codes, tokens and pending authorizations in Redis as
// JSON values. Keys carry a TTL equal to the record lifetime so Redis
// evicts them on its own; expiry is still checked by the caller on read.
type RedisStorage struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStorage connects to Redis, retrying the first ping with
// exponential backoff
func NewRedisStorage(ctx context.Context, cfg RedisConfig) (*RedisStorage, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.MaxElapsedTime == 0 {
		cfg.MaxElapsedTime = 30 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	})

	_, err := backoff.Retry(ctx, func() (string, error) {
		return client.Ping(ctx).Result()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(cfg.MaxElapsedTime),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.LogWarnWithFields("storage", "Redis not reachable yet", map[string]any{
				"addr":  cfg.Addr,
				"error": err.Error(),
				"retry": next.String(),
			})
		}),
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to redis", map[string]any{
		"addr":   cfg.Addr,
		"db":     cfg.DB,
		"prefix": cfg.KeyPrefix,
	})

	return NewRedisStorageWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisStorageWithClient creates a RedisStorage with a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisStorageWithClient(client redis.UniversalClient, keyPrefix string) *RedisStorage {
	return &RedisStorage{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *RedisStorage) key(kind, id string) string {
	return s.keyPrefix + kind + ":" + id
}

// ttlUntil converts an absolute expiry into a Redis TTL, never below a second
func ttlUntil(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

func (s *RedisStorage) put(ctx context.Context, key string, v any, expiresAt time.Time) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, ttlUntil(expiresAt)).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStorage) PutCode(ctx context.Context, code *AuthorizationCode) error {
	return s.put(ctx, s.key(keyCode, code.Code), code, code.ExpiresAt)
}

func (s *RedisStorage) GetCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	data, err := s.client.Get(ctx, s.key(keyCode, code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var c AuthorizationCode
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding authorization code: %w", err)
	}
	return &c, nil
}

// DeleteCode relies on DEL returning the number of keys it removed; Redis
// executes commands one at a time, so only one caller sees 1.
func (s *RedisStorage) DeleteCode(ctx context.Context, code string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(keyCode, code)).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStorage) PutToken(ctx context.Context, token *AccessToken) error {
	return s.put(ctx, s.key(keyToken, token.Token), token, token.ExpiresAt)
}

func (s *RedisStorage) GetToken(ctx context.Context, token string) (*AccessToken, error) {
	data, err := s.client.Get(ctx, s.key(keyToken, token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var t AccessToken
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decoding access token: %w", err)
	}
	return &t, nil
}

func (s *RedisStorage) PutPending(ctx context.Context, sessionID string, pending *PendingAuthorization) error {
	return s.put(ctx, s.key(keyPending, sessionID), pending, pending.ExpiresAt)
}

func (s *RedisStorage) TakePending(ctx context.Context, sessionID string) (*PendingAuthorization, error) {
	data, err := s.client.GetDel(ctx, s.key(keyPending, sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPendingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis getdel: %w", err)
	}

	var p PendingAuthorization
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding pending authorization: %w", err)
	}
	return &p, nil
}

// CleanupExpired is a no-op: every key carries a TTL
func (s *RedisStorage) CleanupExpired(context.Context) (int, error) {
	return 0, nil
}

// Ping checks Redis connectivity (health check).
func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
