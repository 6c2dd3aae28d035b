// internal/service/inventory/domain/events.go
package domain

import "time"

// OrderItemEvent 事件载荷中的一行商品。
type OrderItemEvent struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// OrderCreatedEvent 订单服务在订单落库后发布的事件，库存服务消费它发起预占。
type OrderCreatedEvent struct {
	OrderID int64            `json:"orderId"`
	Items   []OrderItemEvent `json:"items"`
}

// OrderCancelledEvent 订单被取消，库存服务消费它执行补偿释放。
type OrderCancelledEvent struct {
	OrderID int64 `json:"orderId"`
}

// ProductCreatedEvent 商品创建，触发台账的惰性初始化。
type ProductCreatedEvent struct {
	ProductID int64 `json:"productId"`
}

// 以下事件由库存服务发布。时间戳是发布侧的逻辑时间，由编排器在发出时设置。

type StockReservedEvent struct {
	OrderID    int64            `json:"orderId"`
	OccurredAt time.Time        `json:"occurredAt"`
	Items      []OrderItemEvent `json:"items"`
}

type StockReservationFailedEvent struct {
	OrderID    int64     `json:"orderId"`
	OccurredAt time.Time `json:"occurredAt"`
	Reason     string    `json:"reason"`
}

type StockReleasedEvent struct {
	OrderID    int64     `json:"orderId"`
	OccurredAt time.Time `json:"occurredAt"`
}

type LowStockEvent struct {
	ProductID  int64     `json:"productId"`
	Available  int       `json:"available"`
	Threshold  int       `json:"threshold"`
	OccurredAt time.Time `json:"occurredAt"`
}

// 预占失败的 reason 取值。失败是正常业务结果，通过 reason 字段而非错误通道上报。
const (
	ReasonInsufficientStock = "INSUFFICIENT_STOCK"
	ReasonProductNotFound   = "PRODUCT_NOT_FOUND"
)
