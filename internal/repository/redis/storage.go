package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const keyPrefix = "storefront:"

// Storage implements repository.Storage using Redis.
type Storage struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStorage creates a Redis-backed store. A zero ttl keeps keys forever.
func NewStorage(client *redis.Client, ttl time.Duration) *Storage {
	return &Storage{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves the value under key.
func (s *Storage) Get(ctx context.Context, key string) (value string, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemRedis, "GET", "GET "+keyPrefix+key)
	defer func() { end(err) }()

	value, err = s.client.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperrors.NotFound("key", key)
		}
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key with the configured TTL.
func (s *Storage) Set(ctx context.Context, key, value string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemRedis, "SET", "SET "+keyPrefix+key)
	defer func() { end(err) }()

	if err = s.client.Set(ctx, keyPrefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Storage) Delete(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemRedis, "DEL", "DEL "+keyPrefix+key)
	defer func() { end(err) }()

	if err = s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
