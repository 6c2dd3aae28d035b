// internal/service/inventory/interfaces/consumer.go
package interfaces

import (
	"context"
	"encoding/json"

	pkgerrors "github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/service/inventory/application"
	"stocksaga/internal/service/inventory/domain"
)

// NewOrderCreatedHandler 把 order-created 消息解码后交给预占编排器。
func NewOrderCreatedHandler(service *application.Service) mq.HandlerFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt domain.OrderCreatedEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return mq.Permanent(pkgerrors.Wrap(err, "decode OrderCreated event"))
		}
		return service.HandleOrderCreated(ctx, mq.RefOf(msg), evt)
	}
}

func NewOrderCancelledHandler(service *application.Service) mq.HandlerFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt domain.OrderCancelledEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return mq.Permanent(pkgerrors.Wrap(err, "decode OrderCancelled event"))
		}
		return service.HandleOrderCancelled(ctx, mq.RefOf(msg), evt)
	}
}

func NewProductCreatedHandler(service *application.Service) mq.HandlerFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt domain.ProductCreatedEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return mq.Permanent(pkgerrors.Wrap(err, "decode ProductCreated event"))
		}
		return service.HandleProductCreated(ctx, mq.RefOf(msg), evt)
	}
}
