// internal/service/order/infrastructure/noop_publisher.go
package infrastructure

import (
	"context"

	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/service/order/domain"
)

// NoopOrderEventsPublisher Kafka 关闭时使用，只记日志不投递。
type NoopOrderEventsPublisher struct{}

func (NoopOrderEventsPublisher) PublishOrderCreated(ctx context.Context, event domain.OrderCreatedEvent) error {
	logger.Ctx(ctx).Info().Int64("order_id", event.OrderID).Msg("kafka disabled, dropping OrderCreated event")
	return nil
}

func (NoopOrderEventsPublisher) PublishOrderCancelled(ctx context.Context, event domain.OrderCancelledEvent) error {
	logger.Ctx(ctx).Info().Int64("order_id", event.OrderID).Msg("kafka disabled, dropping OrderCancelled event")
	return nil
}
