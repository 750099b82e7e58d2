package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"relink/internal/domain"
	"relink/internal/infra/metrics"
)

const scanBatch = 200

// RedisCache реализует domain.Cache через Redis.
type RedisCache struct {
	client *redis.Client
}

var _ domain.Cache = (*RedisCache)(nil)

// NewRedis создаёт кэш.
func NewRedis(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get возвращает значение. Отсутствие ключа не считается ошибкой.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveNetworkRequest("redis", "get", "cache", start, nil)
		return nil, false, nil
	}
	metrics.ObserveNetworkRequest("redis", "get", "cache", start, err)
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

// Set задаёт значение.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.client.Set(ctx, key, value, ttl).Err()
	metrics.ObserveNetworkRequest("redis", "set", "cache", start, err)
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Invalidate удаляет ключи, подходящие под glob-шаблон, и возвращает их число.
func (c *RedisCache) Invalidate(ctx context.Context, pattern string) (int, error) {
	start := time.Now()
	var (
		removed int
		batch   []string
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.client.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}
	iter := c.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= scanBatch {
			if err := flush(); err != nil {
				metrics.ObserveNetworkRequest("redis", "invalidate", "cache", start, err)
				return removed, fmt.Errorf("redis del: %w", err)
			}
		}
	}
	err := iter.Err()
	if err == nil {
		err = flush()
	}
	metrics.ObserveNetworkRequest("redis", "invalidate", "cache", start, err)
	if err != nil {
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	return removed, nil
}
