package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-service/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	ProductCachePrefix     = "storefront:product:v:"
	ProductListCachePrefix = "storefront:products:v:"
	CacheVersionKey        = "storefront:products:version"

	DefaultTTL = 5 * time.Minute
)

// ProductCache is a Redis read cache for product reads. Every key embeds a
// version number; bumping the version invalidates everything at once.
type ProductCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewProductCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ProductCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ProductCache{redis: client, ttl: ttl, logger: logger}
}

// Version returns the current cache generation. A version of 0 means the
// cache is unreachable and must be bypassed.
func (c *ProductCache) Version(ctx context.Context) int64 {
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		ver, err := c.redis.Get(ctx, CacheVersionKey).Int64()
		if err == nil && ver > 0 {
			return ver
		}

		if errors.Is(err, redis.Nil) {
			// SETNX so a concurrent Invalidate is never overwritten.
			if _, err := c.redis.SetNX(ctx, CacheVersionKey, 1, 0).Result(); err == nil {
				continue
			}
		}

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return 0
			case <-time.After(50 * time.Millisecond):
			}
		}
	}
	return 0
}

// GetProduct returns the cached product for id at version.
func (c *ProductCache) GetProduct(ctx context.Context, version int64, id uint) (*models.Product, bool) {
	if version == 0 {
		return nil, false
	}
	var p models.Product
	if !c.get(ctx, productKey(version, id), &p) {
		return nil, false
	}
	return &p, true
}

// GetProductList returns the cached full product list at version.
func (c *ProductCache) GetProductList(ctx context.Context, version int64) ([]models.Product, bool) {
	if version == 0 {
		return nil, false
	}
	var list []models.Product
	if !c.get(ctx, listKey(version), &list) {
		return nil, false
	}
	return list, true
}

// SetProductAsync stores p under the version observed before it was read.
// If an invalidation happened in between the entry is simply never read.
func (c *ProductCache) SetProductAsync(version int64, p *models.Product) {
	if version == 0 || p == nil {
		return
	}
	c.setAsync(productKey(version, p.ID), p)
}

// SetProductListAsync stores list under the version observed before it was read.
func (c *ProductCache) SetProductListAsync(version int64, list []models.Product) {
	if version == 0 {
		return
	}
	c.setAsync(listKey(version), list)
}

// Invalidate drops every cached product by moving to a new version.
func (c *ProductCache) Invalidate(ctx context.Context) error {
	newVersion, err := c.redis.Incr(ctx, CacheVersionKey).Result()
	if err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	c.logger.Debug("product cache invalidated", zap.Int64("new_version", newVersion))
	return nil
}

func (c *ProductCache) get(ctx context.Context, key string, dst interface{}) bool {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("failed to unmarshal cached entry", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *ProductCache) setAsync(key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("failed to marshal entry for cache", zap.String("key", key), zap.Error(err))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("failed to write cache entry", zap.String("key", key), zap.Error(err))
		}
	}()
}

func productKey(version int64, id uint) string {
	return fmt.Sprintf("%s%d:id:%d", ProductCachePrefix, version, id)
}

func listKey(version int64) string {
	return fmt.Sprintf("%s%d:all", ProductListCachePrefix, version)
}
