package interfaces

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"

	"stocksaga/internal/pkg/mq"
)

// 解码失败属于不可重试错误：消费循环据此走死信路径而不是无限重投。
func TestDecodeFailuresArePermanent(t *testing.T) {
	poison := kafka.Message{Topic: "order-created", Value: []byte("{not json")}

	handlers := map[string]mq.HandlerFunc{
		"OrderCreated":   NewOrderCreatedHandler(nil),
		"OrderCancelled": NewOrderCancelledHandler(nil),
		"ProductCreated": NewProductCreatedHandler(nil),
	}
	for name, handler := range handlers {
		err := handler(context.Background(), poison)
		assert.Error(t, err, name)
		assert.True(t, mq.IsPermanent(err), name)
	}
}
