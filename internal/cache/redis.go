package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisCache.
type RedisOptions struct {
	URL         string
	Prefix      string
	PoolSize    int
	MaxRetries  int
	DialTimeout time.Duration
}

// RedisCache stores entries in Redis with native expiry. Every key is
// namespaced by Prefix so Clear only touches this cache's keys.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *log.Logger
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, opts RedisOptions, logger *log.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid Redis URL: %w", err)
	}
	if opts.PoolSize > 0 {
		opt.PoolSize = opts.PoolSize
	}
	if opts.MaxRetries > 0 {
		opt.MaxRetries = opts.MaxRetries
	}
	if opts.DialTimeout > 0 {
		opt.DialTimeout = opts.DialTimeout
	}
	opt.ReadTimeout = 2 * time.Second
	opt.WriteTimeout = 2 * time.Second

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: failed to connect to Redis at %s: %w", opt.Addr, err)
	}

	return NewRedisCacheFromClient(client, opts.Prefix, logger), nil
}

// DefaultRedisPrefix namespaces keys when no prefix is configured.
const DefaultRedisPrefix = "catalog:"

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, prefix string, logger *log.Logger) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RedisCache{client: client, prefix: prefix, logger: logger}
}

func (c *RedisCache) key(key string) string { return c.prefix + key }

func (c *RedisCache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Printf("WARN: cache: redis get %q failed: %v", key, err)
		return nil, false
	}
	if !json.Valid(val) {
		return nil, false
	}
	return val, true
}

// Set stores data under key. A non-positive ttl drops the key instead, since
// Redis treats a zero expiration as "never expire".
func (c *RedisCache) Set(ctx context.Context, key string, data any, ttl time.Duration) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		c.logger.Printf("WARN: cache: failed to encode entry %q: %v", key, err)
		return false
	}
	if ttl <= 0 {
		c.Delete(ctx, key)
		return true
	}
	if err := c.client.Set(ctx, c.key(key), payload, ttl).Err(); err != nil {
		c.logger.Printf("WARN: cache: redis set %q failed: %v", key, err)
		return false
	}
	return true
}

func (c *RedisCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		c.logger.Printf("WARN: cache: redis delete %q failed: %v", key, err)
	}
}

// Clear deletes every key under the prefix using SCAN so Redis is never
// blocked by a KEYS call.
func (c *RedisCache) Clear(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", 500).Result()
		if err != nil {
			return removed, fmt.Errorf("cache: redis scan failed: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("cache: redis delete failed: %w", err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// Close releases the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
