// internal/service/order/domain/port/publisher.go
package port

import (
	"context"

	"stocksaga/internal/service/order/domain"
)

// OrderEventsPublisher 订单领域事件的出站端口，提交后调用。
type OrderEventsPublisher interface {
	PublishOrderCreated(ctx context.Context, event domain.OrderCreatedEvent) error
	PublishOrderCancelled(ctx context.Context, event domain.OrderCancelledEvent) error
}
