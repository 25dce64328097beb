package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	Redis     redis.UniversalClient
	Namespace string
}

// Create Redis cache with key namespace
func NewCache(namespace string, redisCl redis.UniversalClient) *Cache {
	return &Cache{
		Namespace: namespace,
		Redis:     redisCl,
	}
}

// Get value from Redis; redis.Nil error means a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	return c.Redis.Get(ctx, c.Namespace+":"+key).Result()
}

// Store data to Redis
func (c *Cache) Store(ctx context.Context, key string, ttl time.Duration, value string) error {
	return c.Redis.Set(ctx, c.Namespace+":"+key, value, ttl).Err()
}

// Delete key from Redis
func (c *Cache) Remove(ctx context.Context, key string) error {
	return c.Redis.Del(ctx, c.Namespace+":"+key).Err()
}
