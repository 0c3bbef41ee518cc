package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kjstillabower/weather-explorer/internal/models"
)

// RedisConfig holds connection settings for RedisCache.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisCache implements Cache on a shared Redis instance so replicas see each other's entries.
type RedisCache struct {
	client *redis.Client
	expiry time.Duration
	now    func() time.Time
}

// NewRedisCache connects to Redis with cfg. Keys expire after twice ttl.
func NewRedisCache(cfg RedisConfig, ttl time.Duration, opts ...Option) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	return NewRedisCacheFromClient(client, ttl, opts...)
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration, opts ...Option) *RedisCache {
	s := applyOptions(opts)
	return &RedisCache{client: client, expiry: remoteExpiry(ttl), now: s.now}
}

// Get implements Cache.Get. Returns false, nil on cache miss.
func (c *RedisCache) Get(ctx context.Context, key string) (models.CacheEntry, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.CacheEntry{}, false, nil
		}
		return models.CacheEntry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var entry models.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return entry, true, nil
}

// Set implements Cache.Set.
func (c *RedisCache) Set(ctx context.Context, key string, value models.Resolution) error {
	raw, err := json.Marshal(models.CacheEntry{Key: key, Payload: value, StoredAt: c.now()})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, raw, c.expiry).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable. Used for health checks.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client. Call during shutdown.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
