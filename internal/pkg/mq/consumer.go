// internal/pkg/mq/consumer.go
package mq

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"stocksaga/internal/pkg/logger"
)

// HandlerFunc 处理一条已经完成追踪上下文重建的消息。
// 返回错误会阻止该消息的位点提交，消费组重平衡或重启后重投；
// 幂等性由收件箱保证，重投是安全的。用 Permanent 包装的错误
// 被视为毒消息，转入死信主题后照常提交位点。
type HandlerFunc func(ctx context.Context, msg kafka.Message) error

// DeadLetterSink 接收被判定为不可重试的消息。
type DeadLetterSink interface {
	Publish(ctx context.Context, msg kafka.Message, cause error) error
}

// Consumer 是一个驱动适配器：监听单个主题并把消息交给 HandlerFunc。
type Consumer struct {
	reader  *kafka.Reader
	handler HandlerFunc
	dlt     DeadLetterSink
}

func NewConsumer(reader *kafka.Reader, handler HandlerFunc) *Consumer {
	return &Consumer{reader: reader, handler: handler}
}

// WithDeadLetter 指定毒消息的去处。未设置时毒消息记日志后直接提交。
func (c *Consumer) WithDeadLetter(dlt DeadLetterSink) *Consumer {
	c.dlt = dlt
	return c
}

// Run 阻塞消费直到 ctx 取消。适合放进 errgroup。
func (c *Consumer) Run(ctx context.Context) error {
	topic := c.reader.Config().Topic
	logger.Logger.Info().Str("topic", topic).Msg("kafka consumer started")

	for {
		// 使用 FetchMessage 而不是 ReadMessage，以便处理完成后再提交位点
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Logger.Info().Str("topic", topic).Msg("kafka consumer shutting down")
				return nil
			}
			logger.Logger.Error().Err(err).Str("topic", topic).Msg("could not fetch message, retrying")
			time.Sleep(1 * time.Second) // 避免快速失败循环
			continue
		}

		if err := c.process(ctx, msg); err != nil {
			if !IsPermanent(err) {
				// 位点不提交，重启或重平衡后重投这条消息
				continue
			}
			// 毒消息重投多少次也不会变好：送死信主题（或记日志）后提交位点
			if c.dlt != nil {
				if dltErr := c.dlt.Publish(ctx, msg, err); dltErr != nil {
					logger.Logger.Error().Err(dltErr).Str("topic", topic).
						Int64("offset", msg.Offset).Msg("failed to publish to dead letter topic")
					continue
				}
				logger.Logger.Warn().Err(err).Str("topic", topic).
					Int64("offset", msg.Offset).Msg("poison message routed to dead letter topic")
			} else {
				logger.Logger.Warn().Err(err).Str("topic", topic).
					Int64("offset", msg.Offset).Msg("poison message dropped, no dead letter topic configured")
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Logger.Error().Err(err).Str("topic", topic).Msg("failed to commit offset")
		}
	}
}

// Close 关闭底层 reader，使 Run 尽快退出。
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) process(parentCtx context.Context, msg kafka.Message) error {
	carrier := KafkaHeaderCarrier(msg.Headers)
	ctx := otel.GetTextMapPropagator().Extract(parentCtx, &carrier)

	if err := c.handler(ctx, msg); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("topic", msg.Topic).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("failed to handle message")
		return err
	}
	return nil
}
