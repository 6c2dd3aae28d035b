// internal/service/inventory/domain/repository.go
package domain

import (
	"context"

	"stocksaga/internal/pkg/mq"
)

// StockLedger 定义了库存台账的持久化接口。
//
// Claim / Release 必须实现为单行的条件更新（compare-and-decrement），
// 而不是"读出来再写回去"：同一商品上的并发预占依赖它在存储层串行化，
// 否则 §校验-后-扣减 会与并发扣减竞态导致超卖。
type StockLedger interface {
	// FindByProductID 查找台账行，不存在时返回 ErrStockItemNotFound。
	FindByProductID(ctx context.Context, productID int64) (*StockItem, error)

	// EnsureExists 幂等初始化：已存在则原样返回，不得覆盖计数器。
	EnsureExists(ctx context.Context, productID int64, defaultStock int) (*StockItem, error)

	// Claim 原子地检查 available >= quantity 并完成扣减。
	// 库存不足返回 ErrInsufficientStock，商品不存在返回 ErrStockItemNotFound，
	// quantity <= 0 返回 ErrInvalidArgument；失败时不发生任何变更。
	Claim(ctx context.Context, productID int64, quantity int) error

	// Release 原子地检查 reserved >= quantity 并完成回补。
	// 前置条件不成立返回 ErrLedgerInvariant，且不得部分生效。
	Release(ctx context.Context, productID int64, quantity int) error
}

// ReservationStore 定义了预占记录的持久化接口。
type ReservationStore interface {
	// FindByOrderID 不存在时返回 ErrReservationNotFound。
	FindByOrderID(ctx context.Context, orderID int64) (*StockReservation, error)
	Create(ctx context.Context, reservation *StockReservation) error
	// MarkReleased 把状态置为 RELEASED（单向，幂等由调用方保证）。
	MarkReleased(ctx context.Context, orderID int64) error
}

// MessageInbox 幂等收件箱：首次见到某条消息返回 true 并落库，之后恒为 false。
type MessageInbox interface {
	TryConsume(ctx context.Context, ref mq.MessageRef) (bool, error)
}

// Repos 是绑定到同一个事务的仓储集合。
type Repos struct {
	Ledger       StockLedger
	Reservations ReservationStore
	Inbox        MessageInbox
}

// UnitOfWork 在单个数据库事务中执行 fn。fn 返回错误时整体回滚。
// 收件箱判定与被它保护的业务变更必须发生在同一个事务里。
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(r Repos) error) error
}
