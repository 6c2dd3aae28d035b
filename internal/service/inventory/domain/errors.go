// internal/service/inventory/domain/errors.go
package domain

import "errors"

var (
	// ErrInvalidArgument 调用方入参非法（非正 ID、空行项、非正数量）。
	// 立即返回给调用方，不允许自动重试。
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStockItemNotFound 台账中不存在该商品。
	ErrStockItemNotFound = errors.New("stock item not found")

	// ErrReservationNotFound 不存在该订单的预占记录。
	ErrReservationNotFound = errors.New("stock reservation not found")

	// ErrReservationExists 同一订单的并发预占输给了对方的提交
	// （order_id 唯一约束冲突）。调用方回滚本次事务后重读，
	// 按首次结果返回。
	ErrReservationExists = errors.New("stock reservation already exists")

	// ErrInsufficientStock 可用库存不足，属于正常业务结果而非故障。
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrLedgerInvariant 台账释放前置条件不成立（reserved < quantity），
	// 说明台账与预占记录出现分歧。这是程序或数据错误，必须中止操作，
	// 绝不能静默继续。
	ErrLedgerInvariant = errors.New("ledger invariant violation")
)
