// internal/service/inventory/domain/port/cache.go
package port

import (
	"context"

	"stocksaga/internal/service/inventory/domain"
)

// StockCache 库存查询的旁路缓存。台账写入后调用 Invalidate，读路径未命中回源数据库。
type StockCache interface {
	Get(ctx context.Context, productID int64) (*domain.StockItem, bool, error)
	Set(ctx context.Context, item *domain.StockItem) error
	Invalidate(ctx context.Context, productIDs ...int64) error
}
