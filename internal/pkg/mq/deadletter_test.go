package mq

import (
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestPermanentMarksErrorChain(t *testing.T) {
	cause := pkgerrors.New("decode event")
	err := Permanent(pkgerrors.Wrap(cause, "handler"))

	assert.True(t, IsPermanent(err))
	assert.Contains(t, err.Error(), "permanent:")

	// 透明错误链：外层包装不丢失标记
	wrapped := pkgerrors.WithMessage(err, "outer")
	assert.True(t, IsPermanent(wrapped))
}

func TestPermanentNilIsNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}

func TestTransientErrorIsNotPermanent(t *testing.T) {
	assert.False(t, IsPermanent(pkgerrors.New("db connection lost")))
}

func TestDeadLetterMessageCarriesOriginAndCause(t *testing.T) {
	original := kafka.Message{
		Topic:     "order-created",
		Partition: 3,
		Offset:    42,
		Key:       []byte("order-100"),
		Value:     []byte("{not json"),
		Headers:   []kafka.Header{{Key: "traceparent", Value: []byte("00-abc-def-01")}},
	}

	dead := deadLetterMessage(original, pkgerrors.New("decode OrderCreated event"))

	assert.Equal(t, original.Key, dead.Key)
	assert.Equal(t, original.Value, dead.Value)

	headers := make(map[string]string)
	for _, h := range dead.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "order-created", headers[HeaderOriginalTopic])
	assert.Equal(t, "3", headers[HeaderOriginalPartition])
	assert.Equal(t, "42", headers[HeaderOriginalOffset])
	assert.Equal(t, "decode OrderCreated event", headers[HeaderErrorMessage])
	// 原消息头（含追踪上下文）保留
	assert.Equal(t, "00-abc-def-01", headers["traceparent"])
}
