// internal/service/order/interfaces/consumer.go
package interfaces

import (
	"context"
	"encoding/json"

	pkgerrors "github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/service/order/application"
	"stocksaga/internal/service/order/domain"
)

func NewStockReservedHandler(service *application.Service) mq.HandlerFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt domain.StockReservedEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return mq.Permanent(pkgerrors.Wrap(err, "decode StockReserved event"))
		}
		return service.HandleStockReserved(ctx, mq.RefOf(msg), evt)
	}
}

func NewStockReservationFailedHandler(service *application.Service) mq.HandlerFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt domain.StockReservationFailedEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return mq.Permanent(pkgerrors.Wrap(err, "decode StockReservationFailed event"))
		}
		return service.HandleStockReservationFailed(ctx, mq.RefOf(msg), evt)
	}
}

func NewStockReleasedHandler(service *application.Service) mq.HandlerFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt domain.StockReleasedEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return mq.Permanent(pkgerrors.Wrap(err, "decode StockReleased event"))
		}
		return service.HandleStockReleased(ctx, mq.RefOf(msg), evt)
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
