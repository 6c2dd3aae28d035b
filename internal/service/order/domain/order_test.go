package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderComputesTotal(t *testing.T) {
	order, err := NewOrder("alice", []OrderItem{
		{ProductID: 1, Quantity: 2, UnitPrice: 9.5},
		{ProductID: 2, Quantity: 1, UnitPrice: 1.0},
	})
	require.NoError(t, err)
	assert.Equal(t, OrderCreated, order.Status)
	assert.Equal(t, 20.0, order.Total)
}

func TestNewOrderRejectsInvalidInput(t *testing.T) {
	_, err := NewOrder("", []OrderItem{{ProductID: 1, Quantity: 1}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewOrder("alice", nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewOrder("alice", []OrderItem{{ProductID: 1, Quantity: 0}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewOrder("alice", []OrderItem{{ProductID: 0, Quantity: 1}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMarkReservedTransitionsFromCreatedOnly(t *testing.T) {
	order := &Order{Status: OrderCreated}
	assert.True(t, order.MarkReserved())
	assert.Equal(t, OrderReserved, order.Status)

	// 终态不再迁移
	assert.False(t, order.MarkReserved())
	assert.False(t, order.MarkCancelled())
	assert.Equal(t, OrderReserved, order.Status)
}

func TestMarkCancelledTransitionsFromCreatedOnly(t *testing.T) {
	order := &Order{Status: OrderCreated}
	assert.True(t, order.MarkCancelled())
	assert.Equal(t, OrderCancelled, order.Status)

	assert.False(t, order.MarkCancelled())
	assert.False(t, order.MarkReserved())
	assert.Equal(t, OrderCancelled, order.Status)
}
