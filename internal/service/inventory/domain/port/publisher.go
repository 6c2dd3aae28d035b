// internal/service/inventory/domain/port/publisher.go
package port

import (
	"context"

	"stocksaga/internal/service/inventory/domain"
)

// StockEventsPublisher 库存领域事件的出站端口。
// 实现不保证投递成功（发布失败只记日志），调用方必须放在事务提交之后调用。
type StockEventsPublisher interface {
	PublishStockReserved(ctx context.Context, event domain.StockReservedEvent) error
	PublishStockReservationFailed(ctx context.Context, event domain.StockReservationFailedEvent) error
	PublishStockReleased(ctx context.Context, event domain.StockReleasedEvent) error
	PublishLowStock(ctx context.Context, event domain.LowStockEvent) error
}
