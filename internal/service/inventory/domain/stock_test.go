package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateReserveLines(t *testing.T) {
	valid := []ReserveLine{{ProductID: 1, Quantity: 2}}

	assert.NoError(t, ValidateReserveLines(100, valid))

	assert.ErrorIs(t, ValidateReserveLines(0, valid), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateReserveLines(-1, valid), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateReserveLines(100, nil), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateReserveLines(100, []ReserveLine{}), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateReserveLines(100, []ReserveLine{{ProductID: 0, Quantity: 1}}), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateReserveLines(100, []ReserveLine{{ProductID: 1, Quantity: 0}}), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateReserveLines(100, []ReserveLine{{ProductID: 1, Quantity: -3}}), ErrInvalidArgument)
}

func TestNewStockReservationStartsReserved(t *testing.T) {
	r := NewStockReservation(100, []ReserveLine{
		{ProductID: 1, Quantity: 4},
		{ProductID: 2, Quantity: 1},
	})

	assert.Equal(t, int64(100), r.OrderID)
	assert.Equal(t, ReservationReserved, r.Status)
	assert.Equal(t, []ReservationItem{
		{ProductID: 1, Quantity: 4},
		{ProductID: 2, Quantity: 1},
	}, r.Items)
}
