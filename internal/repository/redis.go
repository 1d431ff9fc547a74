package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lifestory/internal/config"

	"github.com/redis/go-redis/v9"
)

type RedisKVStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisClient builds a redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

// NewRedisKVStore stores values under prefix+key. A zero ttl keeps values forever.
func NewRedisKVStore(client *redis.Client, prefix string, ttl time.Duration) *RedisKVStore {
	return &RedisKVStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from redis: %w", key, err)
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key string, value []byte) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in redis: %w", key, err)
	}
	return nil
}

func (r *RedisKVStore) Delete(ctx context.Context, key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s from redis: %w", key, err)
	}
	return nil
}

// Ping checks the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
