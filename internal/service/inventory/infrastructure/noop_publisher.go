// internal/service/inventory/infrastructure/noop_publisher.go
package infrastructure

import (
	"context"

	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/service/inventory/domain"
)

// NoopStockEventsPublisher 在 Kafka 关闭时使用，只记日志不投递。
type NoopStockEventsPublisher struct{}

func (NoopStockEventsPublisher) PublishStockReserved(ctx context.Context, event domain.StockReservedEvent) error {
	logger.Ctx(ctx).Info().Int64("order_id", event.OrderID).Msg("kafka disabled, dropping StockReserved event")
	return nil
}

func (NoopStockEventsPublisher) PublishStockReservationFailed(ctx context.Context, event domain.StockReservationFailedEvent) error {
	logger.Ctx(ctx).Info().Int64("order_id", event.OrderID).Str("reason", event.Reason).
		Msg("kafka disabled, dropping StockReservationFailed event")
	return nil
}

func (NoopStockEventsPublisher) PublishStockReleased(ctx context.Context, event domain.StockReleasedEvent) error {
	logger.Ctx(ctx).Info().Int64("order_id", event.OrderID).Msg("kafka disabled, dropping StockReleased event")
	return nil
}

func (NoopStockEventsPublisher) PublishLowStock(ctx context.Context, event domain.LowStockEvent) error {
	logger.Ctx(ctx).Info().Int64("product_id", event.ProductID).Int("available", event.Available).
		Msg("kafka disabled, dropping LowStock event")
	return nil
}
