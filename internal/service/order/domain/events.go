// internal/service/order/domain/events.go
//
// 订单侧的事件载荷。出站事件（OrderCreated / OrderCancelled）与
// 入站的库存事件共享同一套 JSON 字段名，两个服务各自持有自己的声明。
package domain

import "time"

type OrderItemEvent struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// OrderCreatedEvent 订单创建后发布，触发库存侧的异步预占。
type OrderCreatedEvent struct {
	OrderID int64            `json:"orderId"`
	Items   []OrderItemEvent `json:"items"`
}

// OrderCancelledEvent 订单取消后发布，触发库存侧的预占释放。
type OrderCancelledEvent struct {
	OrderID int64 `json:"orderId"`
}

// StockReservedEvent 库存侧预占成功的回执。
type StockReservedEvent struct {
	OrderID    int64            `json:"orderId"`
	OccurredAt time.Time        `json:"occurredAt"`
	Items      []OrderItemEvent `json:"items"`
}

// StockReservationFailedEvent 库存侧预占失败的回执。
type StockReservationFailedEvent struct {
	OrderID    int64     `json:"orderId"`
	OccurredAt time.Time `json:"occurredAt"`
	Reason     string    `json:"reason"`
}

// StockReleasedEvent 库存侧预占释放的回执，订单侧仅记录。
type StockReleasedEvent struct {
	OrderID    int64     `json:"orderId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// ProductCreatedEvent 商品目录广播，用于维护本地商品影子表。
type ProductCreatedEvent struct {
	ProductID int64   `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
}
