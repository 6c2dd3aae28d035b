// internal/service/order/domain/repository.go
package domain

import (
	"context"

	"stocksaga/internal/pkg/mq"
)

// OrderRepository 订单持久化接口。
type OrderRepository interface {
	// FindByID 不存在时返回 ErrOrderNotFound。
	FindByID(ctx context.Context, orderID int64) (*Order, error)
	List(ctx context.Context, limit, offset int) ([]*Order, error)
	Create(ctx context.Context, order *Order) error
	// UpdateStatus 持久化状态迁移，状态本身的合法性由聚合保证。
	UpdateStatus(ctx context.Context, orderID int64, status OrderStatus) error
}

// Product 本地商品影子表的一行，由 product-created 广播维护。
type Product struct {
	ProductID int64
	Name      string
	Price     float64
}

// ProductCatalog 商品影子表。下单时用它校验商品存在并取价格。
type ProductCatalog interface {
	// FindByProductID 不存在时返回 ErrProductNotFound。
	FindByProductID(ctx context.Context, productID int64) (*Product, error)
	// Upsert 幂等写入，价格以最新广播为准。
	Upsert(ctx context.Context, product *Product) error
}

// MessageInbox 幂等收件箱，语义同库存侧。
type MessageInbox interface {
	TryConsume(ctx context.Context, ref mq.MessageRef) (bool, error)
}

// Repos 绑定到同一事务的仓储集合。
type Repos struct {
	Orders  OrderRepository
	Catalog ProductCatalog
	Inbox   MessageInbox
}

type UnitOfWork interface {
	InTx(ctx context.Context, fn func(r Repos) error) error
}
