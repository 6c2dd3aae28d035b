// internal/service/order/domain/order.go
package domain

import (
	"time"
)

// OrderStatus 订单 Saga 的状态。RESERVED 与 CANCELLED 均为终态。
type OrderStatus string

const (
	OrderCreated   OrderStatus = "CREATED"
	OrderReserved  OrderStatus = "RESERVED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Order 订单聚合根。
type Order struct {
	ID           int64
	CustomerName string
	Items        []OrderItem
	Total        float64
	Status       OrderStatus
	CreatedAt    time.Time
}

type OrderItem struct {
	ProductID int64
	Quantity  int
	UnitPrice float64
}

// NewOrder 创建一个 CREATED 状态的订单并计算总额。
func NewOrder(customerName string, items []OrderItem) (*Order, error) {
	if customerName == "" || len(items) == 0 {
		return nil, ErrInvalidArgument
	}
	var total float64
	for _, item := range items {
		if item.ProductID <= 0 || item.Quantity <= 0 || item.UnitPrice < 0 {
			return nil, ErrInvalidArgument
		}
		total += item.UnitPrice * float64(item.Quantity)
	}
	return &Order{
		CustomerName: customerName,
		Items:        items,
		Total:        total,
		Status:       OrderCreated,
	}, nil
}

// IsTerminal 终态订单不再接受任何状态迁移。
func (o *Order) IsTerminal() bool {
	return o.Status == OrderReserved || o.Status == OrderCancelled
}

// MarkReserved 尝试迁移到 RESERVED。订单已处于终态时不做任何事并
// 返回 false；迟到或重复投递的结果不是错误。
func (o *Order) MarkReserved() bool {
	if o.IsTerminal() {
		return false
	}
	o.Status = OrderReserved
	return true
}

// MarkCancelled 尝试迁移到 CANCELLED，语义同 MarkReserved。
func (o *Order) MarkCancelled() bool {
	if o.IsTerminal() {
		return false
	}
	o.Status = OrderCancelled
	return true
}
