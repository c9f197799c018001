package kv

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces kv entries in Redis.
const KeyPrefix = "kv:"

// RedisStore keeps entries in Redis without expiry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an initialized client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get retrieves a value
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, KeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil // Miss, not an error
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set stores a value with no TTL
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, KeyPrefix+key, value, 0).Err()
}

// Remove deletes a value
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, KeyPrefix+key).Err()
}
