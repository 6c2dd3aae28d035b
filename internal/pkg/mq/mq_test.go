package mq

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestKafkaHeaderCarrierRoundTrip(t *testing.T) {
	carrier := KafkaHeaderCarrier{}

	carrier.Set("traceparent", "00-abc-def-01")
	carrier.Set("baggage", "k=v")
	assert.Equal(t, "00-abc-def-01", carrier.Get("traceparent"))
	assert.ElementsMatch(t, []string{"traceparent", "baggage"}, carrier.Keys())

	// 同名覆盖而不是追加
	carrier.Set("traceparent", "00-abc-def-02")
	assert.Equal(t, "00-abc-def-02", carrier.Get("traceparent"))
	assert.Len(t, carrier.Keys(), 2)

	assert.Empty(t, carrier.Get("missing"))
}

func TestRefOfCarriesAddressingTriple(t *testing.T) {
	msg := kafka.Message{Topic: "order-created", Partition: 3, Offset: 42}

	ref := RefOf(msg)
	assert.Equal(t, "order-created", ref.Topic)
	assert.Equal(t, 3, ref.Partition)
	assert.Equal(t, int64(42), ref.Offset)
}
