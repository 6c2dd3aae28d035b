// internal/pkg/mq/deadletter.go
package mq

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// 死信消息携带的标准头，记录原始投递位置与失败原因
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderErrorMessage      = "x-error-message"
)

// PermanentError 标记一个重投无法解决的处理失败（典型如消息体解码失败）。
// 消费循环遇到它不会阻塞位点，而是把消息送进死信主题后继续前进。
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent 把 err 包装为不可重试的处理失败。
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent 判断 err 链上是否存在 PermanentError。
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// DeadLetterPublisher 把无法处理的消息原样转发到死信主题，
// 并在消息头上附带原始主题、分区、位点和失败原因。
type DeadLetterPublisher struct {
	writer *kafka.Writer
}

func NewDeadLetterPublisher(brokers []string, topic string) *DeadLetterPublisher {
	return &DeadLetterPublisher{writer: NewKafkaWriter(brokers, topic)}
}

func (p *DeadLetterPublisher) Publish(ctx context.Context, msg kafka.Message, cause error) error {
	return p.writer.WriteMessages(ctx, deadLetterMessage(msg, cause))
}

func deadLetterMessage(msg kafka.Message, cause error) kafka.Message {
	return kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafka.Header{}, msg.Headers...),
			kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
			kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
			kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kafka.Header{Key: HeaderErrorMessage, Value: []byte(cause.Error())},
		),
	}
}

func (p *DeadLetterPublisher) Close() error {
	return p.writer.Close()
}
