// internal/service/inventory/infrastructure/kafka_publisher.go
package infrastructure

import (
	"context"
	"encoding/json"
	"strconv"

	"stocksaga/internal/pkg/bootstrap"
	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/service/inventory/domain"

	pkgerrors "github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// KafkaStockEventsPublisher 把库存领域事件发布到各自的 Kafka 主题。
// 消息 key 取订单号或商品号，保证同一实体的事件落在同一分区。
type KafkaStockEventsPublisher struct {
	reservedWriter *kafka.Writer
	failedWriter   *kafka.Writer
	releasedWriter *kafka.Writer
	lowStockWriter *kafka.Writer
}

func NewKafkaStockEventsPublisher(cfg bootstrap.KafkaConfig) *KafkaStockEventsPublisher {
	return &KafkaStockEventsPublisher{
		reservedWriter: mq.NewKafkaWriter(cfg.Brokers, cfg.Topics.StockReserved),
		failedWriter:   mq.NewKafkaWriter(cfg.Brokers, cfg.Topics.StockReservationFailed),
		releasedWriter: mq.NewKafkaWriter(cfg.Brokers, cfg.Topics.StockReleased),
		lowStockWriter: mq.NewKafkaWriter(cfg.Brokers, cfg.Topics.LowStock),
	}
}

func (p *KafkaStockEventsPublisher) PublishStockReserved(ctx context.Context, event domain.StockReservedEvent) error {
	return publish(ctx, p.reservedWriter, orderKey(event.OrderID), event)
}

func (p *KafkaStockEventsPublisher) PublishStockReservationFailed(ctx context.Context, event domain.StockReservationFailedEvent) error {
	return publish(ctx, p.failedWriter, orderKey(event.OrderID), event)
}

func (p *KafkaStockEventsPublisher) PublishStockReleased(ctx context.Context, event domain.StockReleasedEvent) error {
	return publish(ctx, p.releasedWriter, orderKey(event.OrderID), event)
}

func (p *KafkaStockEventsPublisher) PublishLowStock(ctx context.Context, event domain.LowStockEvent) error {
	return publish(ctx, p.lowStockWriter, productKey(event.ProductID), event)
}

func (p *KafkaStockEventsPublisher) Close() error {
	for _, w := range []*kafka.Writer{p.reservedWriter, p.failedWriter, p.releasedWriter, p.lowStockWriter} {
		_ = w.Close()
	}
	return nil
}

func publish(ctx context.Context, writer *kafka.Writer, key string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return pkgerrors.Wrapf(err, "marshal event for topic %s", writer.Topic)
	}
	return mq.ProduceMessage(ctx, writer, []byte(key), payload)
}

func orderKey(orderID int64) string { return "order-" + strconv.FormatInt(orderID, 10) }

func productKey(productID int64) string { return "product-" + strconv.FormatInt(productID, 10) }
