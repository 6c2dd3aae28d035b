// internal/service/inventory/domain/stock.go
package domain

import "time"

// StockItem 是某个商品的库存台账：可用数与预占数两个计数器。
// available + reserved 在任意一次完整的 claim/release 之外保持不变。
type StockItem struct {
	ID        int64
	ProductID int64
	Available int
	Reserved  int
	CreatedAt time.Time
}

// ReservationStatus 预占记录的生命周期状态。
type ReservationStatus string

const (
	ReservationReserved ReservationStatus = "RESERVED"
	ReservationReleased ReservationStatus = "RELEASED"
)

// StockReservation 是订单持有库存的持久化凭据。
// 每个订单至多存在一条；行项在创建后不可变；
// 状态只允许 RESERVED→RELEASED 单向流转一次。
type StockReservation struct {
	ID        int64
	OrderID   int64
	Status    ReservationStatus
	Items     []ReservationItem
	CreatedAt time.Time
}

type ReservationItem struct {
	ProductID int64
	Quantity  int
}

// NewStockReservation 创建一条 RESERVED 状态的预占记录。
func NewStockReservation(orderID int64, lines []ReserveLine) *StockReservation {
	r := &StockReservation{
		OrderID:   orderID,
		Status:    ReservationReserved,
		CreatedAt: time.Now().UTC(),
	}
	for _, line := range lines {
		r.Items = append(r.Items, ReservationItem{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return r
}

// ReserveLine 是一次预占请求中的一行。
type ReserveLine struct {
	ProductID int64
	Quantity  int
}

// ValidateReserveLines 校验预占请求入参。
func ValidateReserveLines(orderID int64, lines []ReserveLine) error {
	if orderID <= 0 {
		return ErrInvalidArgument
	}
	if len(lines) == 0 {
		return ErrInvalidArgument
	}
	for _, line := range lines {
		if line.ProductID <= 0 || line.Quantity <= 0 {
			return ErrInvalidArgument
		}
	}
	return nil
}
