// internal/service/inventory/infrastructure/stock_cache.go
package infrastructure

import (
	"context"
	"fmt"
	"time"

	pkgredis "stocksaga/internal/pkg/redis"
	"stocksaga/internal/service/inventory/domain"
)

const stockCacheTTL = 30 * time.Second

// RedisStockCache 库存查询旁路缓存。短 TTL 兜底失效消息丢失的场景。
type RedisStockCache struct {
	client *pkgredis.Client
}

func NewRedisStockCache(client *pkgredis.Client) *RedisStockCache {
	return &RedisStockCache{client: client}
}

func stockCacheKey(productID int64) string {
	return fmt.Sprintf("stock:item:%d", productID)
}

func (c *RedisStockCache) Get(ctx context.Context, productID int64) (*domain.StockItem, bool, error) {
	var item domain.StockItem
	ok, err := c.client.GetJSON(ctx, stockCacheKey(productID), &item)
	if err != nil || !ok {
		return nil, false, err
	}
	return &item, true, nil
}

func (c *RedisStockCache) Set(ctx context.Context, item *domain.StockItem) error {
	return c.client.SetJSON(ctx, stockCacheKey(item.ProductID), item, stockCacheTTL)
}

func (c *RedisStockCache) Invalidate(ctx context.Context, productIDs ...int64) error {
	keys := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		keys = append(keys, stockCacheKey(id))
	}
	return c.client.Del(ctx, keys...)
}

// NoopStockCache Redis 关闭时的占位实现。
type NoopStockCache struct{}

func (NoopStockCache) Get(ctx context.Context, productID int64) (*domain.StockItem, bool, error) {
	return nil, false, nil
}

func (NoopStockCache) Set(ctx context.Context, item *domain.StockItem) error { return nil }

func (NoopStockCache) Invalidate(ctx context.Context, productIDs ...int64) error { return nil }
