// Package cache memoizes flattened document text in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tacivo/tacivo/internal/blocknote"
)

// TextCache stores flattened text keyed by the serialized document it came
// from. Implementations never fail the caller: errors are logged and treated
// as misses.
type TextCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, text string)
}

// Key derives the cache key for a serialized document flattened under limits.
func Key(serialized string, limits blocknote.Limits) string {
	sum := sha256.Sum256([]byte(serialized))
	return fmt.Sprintf("d%d:b%d:%s", limits.MaxDepth, limits.MaxBlocks, hex.EncodeToString(sum[:]))
}

// Noop is used when no Redis is configured.
type Noop struct{}

func (Noop) Get(context.Context, string) (string, bool) { return "", false }
func (Noop) Set(context.Context, string, string)        {}

// RedisCache implements TextCache on Redis with a fixed TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *slog.Logger
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(redisURL string, ttl time.Duration, log *slog.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisCacheWithClient(client, ttl, log), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration, log *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisCache{client: client, prefix: "tacivo:text:", ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		c.log.Warn("text cache get failed", "error", err)
		return "", false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key, text string) {
	if err := c.client.Set(ctx, c.prefix+key, text, c.ttl).Err(); err != nil {
		c.log.Warn("text cache set failed", "error", err)
	}
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Flattener flattens serialized documents, consulting a TextCache first.
type Flattener struct {
	cache TextCache
	f     *blocknote.Flattener
}

func NewFlattener(cache TextCache, f *blocknote.Flattener) *Flattener {
	if cache == nil {
		cache = Noop{}
	}
	return &Flattener{cache: cache, f: f}
}

// Text returns the flattened text of serialized. Malformed documents yield
// "" and are not cached.
func (cf *Flattener) Text(ctx context.Context, serialized string) string {
	key := Key(serialized, cf.f.Limits())
	if text, ok := cf.cache.Get(ctx, key); ok {
		return text
	}
	blocks, err := cf.f.Parse([]byte(serialized))
	if err != nil {
		return cf.f.FlattenSerialized(serialized)
	}
	text := cf.f.Flatten(blocks)
	cf.cache.Set(ctx, key, text)
	return text
}
