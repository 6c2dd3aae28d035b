// internal/service/order/infrastructure/kafka_publisher.go
package infrastructure

import (
	"context"
	"encoding/json"
	"strconv"

	pkgerrors "github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"stocksaga/internal/pkg/bootstrap"
	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/service/order/domain"
)

// KafkaOrderEventsPublisher 订单事件发布器，key 取订单号保证分区有序。
type KafkaOrderEventsPublisher struct {
	createdWriter   *kafka.Writer
	cancelledWriter *kafka.Writer
}

func NewKafkaOrderEventsPublisher(cfg bootstrap.KafkaConfig) *KafkaOrderEventsPublisher {
	return &KafkaOrderEventsPublisher{
		createdWriter:   mq.NewKafkaWriter(cfg.Brokers, cfg.Topics.OrderCreated),
		cancelledWriter: mq.NewKafkaWriter(cfg.Brokers, cfg.Topics.OrderCancelled),
	}
}

func (p *KafkaOrderEventsPublisher) PublishOrderCreated(ctx context.Context, event domain.OrderCreatedEvent) error {
	return p.publish(ctx, p.createdWriter, event.OrderID, event)
}

func (p *KafkaOrderEventsPublisher) PublishOrderCancelled(ctx context.Context, event domain.OrderCancelledEvent) error {
	return p.publish(ctx, p.cancelledWriter, event.OrderID, event)
}

func (p *KafkaOrderEventsPublisher) Close() error {
	_ = p.createdWriter.Close()
	return p.cancelledWriter.Close()
}

func (p *KafkaOrderEventsPublisher) publish(ctx context.Context, writer *kafka.Writer, orderID int64, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return pkgerrors.Wrapf(err, "marshal event for topic %s", writer.Topic)
	}
	key := "order-" + strconv.FormatInt(orderID, 10)
	return mq.ProduceMessage(ctx, writer, []byte(key), payload)
}
