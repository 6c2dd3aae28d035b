// internal/service/order/domain/port/inventory.go
package port

import (
	"context"

	"stocksaga/internal/service/order/domain"
)

// ReserveOutcome 库存服务对同步预占请求的业务回答。
type ReserveOutcome struct {
	Reserved bool
	Reason   string
}

// InventoryClient 库存服务的出站端口。
//
// 业务失败（库存不足等）体现在 ReserveOutcome 里，error 只表示
// 请求没有得到有效回答：参数被拒返回 domain.ErrInvalidArgument，
// 网络或 5xx 返回 domain.ErrInventoryUnavailable，调用方可重试。
type InventoryClient interface {
	ReserveStock(ctx context.Context, orderID int64, items []domain.OrderItem) (ReserveOutcome, error)
	ReleaseStock(ctx context.Context, orderID int64) (bool, error)
}
