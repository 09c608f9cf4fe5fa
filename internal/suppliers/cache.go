package suppliers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
)

const nameCacheKey = "catalog:suppliers:names"

// NameCache keeps supplier names in a Redis hash so links can be labelled without a lookup.
type NameCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewNameCache constructs a NameCache. A nil client disables caching.
func NewNameCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *NameCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NameCache{client: client, ttl: ttl, logger: logger}
}

// Store replaces the cached names with suppliers.
func (c *NameCache) Store(ctx context.Context, suppliers []catalogapi.Supplier) {
	if c == nil || c.client == nil {
		return
	}
	values := make(map[string]any, len(suppliers))
	for _, s := range suppliers {
		values[strconv.FormatInt(s.ID, 10)] = s.Name
	}
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, nameCacheKey)
	if len(values) > 0 {
		pipe.HSet(ctx, nameCacheKey, values)
		pipe.Expire(ctx, nameCacheKey, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("supplier name cache store", slog.Any("error", err))
	}
}

// Names returns every cached name keyed by supplier id.
func (c *NameCache) Names(ctx context.Context) map[int64]string {
	out := make(map[int64]string)
	if c == nil || c.client == nil {
		return out
	}
	raw, err := c.client.HGetAll(ctx, nameCacheKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("supplier name cache read", slog.Any("error", err))
		}
		return out
	}
	for key, name := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		out[id] = name
	}
	return out
}

// Name returns the cached name of id, or ID:<n> when unknown.
func (c *NameCache) Name(ctx context.Context, id int64) string {
	if c != nil && c.client != nil {
		name, err := c.client.HGet(ctx, nameCacheKey, strconv.FormatInt(id, 10)).Result()
		if err == nil && name != "" {
			return name
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			c.logger.Warn("supplier name cache read", slog.Any("error", err))
		}
	}
	return FallbackName(id)
}

// Empty reports whether nothing is cached.
func (c *NameCache) Empty(ctx context.Context) bool {
	if c == nil || c.client == nil {
		return true
	}
	n, err := c.client.HLen(ctx, nameCacheKey).Result()
	return err != nil || n == 0
}
