package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for stored identities.
	KeyPrefix = "identity:"
)

// RedisStore keeps the identifier in Redis under identity:<profile>, so
// several terminals sharing a profile see the same registration.
type RedisStore struct {
	client  *redis.Client
	profile string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisAddr, profile string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("identity: redis connection failed: %w", err)
	}

	return NewRedisStoreWithClient(client, profile), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, profile string) *RedisStore {
	return &RedisStore{client: client, profile: profile}
}

func (s *RedisStore) key() string {
	return KeyPrefix + s.profile
}

// Load returns the stored identifier, or "" when the key is absent.
func (s *RedisStore) Load(ctx context.Context) (string, error) {
	id, err := s.client.Get(ctx, s.key()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("identity: redis get: %w", err)
	}
	return id, nil
}

// Save stores the identifier without expiry; it outlives every session.
func (s *RedisStore) Save(ctx context.Context, userID string) error {
	return s.client.Set(ctx, s.key(), userID, 0).Err()
}

// Clear deletes the key.
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key()).Err()
}

// Client returns the underlying Redis client so other components can share
// the connection.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
