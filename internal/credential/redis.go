package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/expo-client-core/internal/infrastructure/config"
)

const redisPingTimeout = 3 * time.Second

// RedisStore keeps the token in Redis under "{prefix}:auth_token". Used on
// shared kiosk hosts where several client processes share one login.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	owned  bool
}

// NewRedisStore wraps an existing client. The caller keeps ownership.
// ttl of 0 keeps the token until Clear.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	key := TokenKey
	if prefix != "" {
		key = prefix + ":" + TokenKey
	}
	return &RedisStore{client: client, key: key, ttl: ttl}
}

// OpenRedis connects using cfg and verifies the server with a PING.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s := NewRedisStore(client, cfg.KeyPrefix, time.Duration(cfg.TTL)*time.Hour)
	s.owned = true
	return s, nil
}

// Key returns the Redis key holding the token.
func (s *RedisStore) Key() string {
	return s.key
}

func (s *RedisStore) Load(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: loading token: %w", ErrUnavailable, err)
	}
	return token, nil
}

func (s *RedisStore) Save(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, s.key, token, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: saving token: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("%w: clearing token: %w", ErrUnavailable, err)
	}
	return nil
}

// Close closes the client if OpenRedis created it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
