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
	poison := kafka.Message{Topic: "stock-reserved", Value: []byte("{not json")}

	handlers := map[string]mq.HandlerFunc{
		"StockReserved":          NewStockReservedHandler(nil),
		"StockReservationFailed": NewStockReservationFailedHandler(nil),
		"StockReleased":          NewStockReleasedHandler(nil),
		"ProductCreated":         NewProductCreatedHandler(nil),
	}
	for name, handler := range handlers {
		err := handler(context.Background(), poison)
		assert.Error(t, err, name)
		assert.True(t, mq.IsPermanent(err), name)
	}
}
