// internal/service/inventory/infrastructure/store.go
package infrastructure

import (
	"context"
	"errors"

	"stocksaga/internal/pkg/database"
	"stocksaga/internal/pkg/inbox"
	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/service/inventory/domain"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
)

// Store 基于 gorm 的持久化入口，同时充当 UnitOfWork。
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// InTx 在单个 MySQL 事务中执行 fn，事务内的仓储共享同一个 *gorm.DB。
func (s *Store) InTx(ctx context.Context, fn func(r domain.Repos) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(reposOn(tx))
	})
}

// Ledger 返回绕过事务的只读台账，用于查询接口。
func (s *Store) Ledger() domain.StockLedger {
	return &gormStockLedger{db: s.db}
}

// Reservations 返回绕过事务的预占查询。
func (s *Store) Reservations() domain.ReservationStore {
	return &gormReservationStore{db: s.db}
}

func reposOn(tx *gorm.DB) domain.Repos {
	return domain.Repos{
		Ledger:       &gormStockLedger{db: tx},
		Reservations: &gormReservationStore{db: tx},
		Inbox:        &gormMessageInbox{db: tx},
	}
}

type gormStockLedger struct {
	db *gorm.DB
}

func (l *gormStockLedger) FindByProductID(ctx context.Context, productID int64) (*domain.StockItem, error) {
	var m StockItemModel
	err := l.db.WithContext(ctx).Where("product_id = ?", productID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrStockItemNotFound
		}
		return nil, pkgerrors.Wrapf(err, "find stock item %d", productID)
	}
	return toStockItem(&m), nil
}

func (l *gormStockLedger) EnsureExists(ctx context.Context, productID int64, defaultStock int) (*domain.StockItem, error) {
	if productID <= 0 || defaultStock < 0 {
		return nil, domain.ErrInvalidArgument
	}
	m := StockItemModel{ProductID: productID, Available: defaultStock, Reserved: 0}
	err := l.db.WithContext(ctx).Create(&m).Error
	if err == nil {
		return toStockItem(&m), nil
	}
	// 已存在视为成功，绝不覆盖既有计数器。
	if database.IsDuplicateEntry(err) {
		return l.FindByProductID(ctx, productID)
	}
	return nil, pkgerrors.Wrapf(err, "ensure stock item %d", productID)
}

func (l *gormStockLedger) Claim(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidArgument
	}
	// 条件扣减：available >= quantity 不成立时影响行数为 0，
	// 由数据库串行化并发扣减，杜绝超卖。
	res := l.db.WithContext(ctx).Model(&StockItemModel{}).
		Where("product_id = ? AND available >= ?", productID, quantity).
		Updates(map[string]interface{}{
			"available": gorm.Expr("available - ?", quantity),
			"reserved":  gorm.Expr("reserved + ?", quantity),
		})
	if res.Error != nil {
		return pkgerrors.Wrapf(res.Error, "claim stock product=%d qty=%d", productID, quantity)
	}
	if res.RowsAffected == 0 {
		// 区分"商品不存在"与"库存不足"。
		if _, err := l.FindByProductID(ctx, productID); err != nil {
			return err
		}
		return domain.ErrInsufficientStock
	}
	return nil
}

func (l *gormStockLedger) Release(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidArgument
	}
	res := l.db.WithContext(ctx).Model(&StockItemModel{}).
		Where("product_id = ? AND reserved >= ?", productID, quantity).
		Updates(map[string]interface{}{
			"available": gorm.Expr("available + ?", quantity),
			"reserved":  gorm.Expr("reserved - ?", quantity),
		})
	if res.Error != nil {
		return pkgerrors.Wrapf(res.Error, "release stock product=%d qty=%d", productID, quantity)
	}
	if res.RowsAffected == 0 {
		// 台账与预占记录对不上，只能当作数据损坏处理。
		return pkgerrors.Wrapf(domain.ErrLedgerInvariant,
			"release stock product=%d qty=%d", productID, quantity)
	}
	return nil
}

type gormReservationStore struct {
	db *gorm.DB
}

func (s *gormReservationStore) FindByOrderID(ctx context.Context, orderID int64) (*domain.StockReservation, error) {
	var m StockReservationModel
	err := s.db.WithContext(ctx).Preload("Items").Where("order_id = ?", orderID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, pkgerrors.Wrapf(err, "find reservation order=%d", orderID)
	}
	return toReservation(&m), nil
}

func (s *gormReservationStore) Create(ctx context.Context, reservation *domain.StockReservation) error {
	m := StockReservationModel{
		OrderID: reservation.OrderID,
		Status:  string(reservation.Status),
	}
	for _, it := range reservation.Items {
		m.Items = append(m.Items, StockReservationItemModel{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
		})
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		// 并发预占同一订单时输掉唯一约束竞争的一方走到这里
		if database.IsDuplicateEntry(err) {
			return domain.ErrReservationExists
		}
		return pkgerrors.Wrapf(err, "create reservation order=%d", reservation.OrderID)
	}
	reservation.ID = m.ID
	reservation.CreatedAt = m.CreatedAt
	return nil
}

func (s *gormReservationStore) MarkReleased(ctx context.Context, orderID int64) error {
	res := s.db.WithContext(ctx).Model(&StockReservationModel{}).
		Where("order_id = ?", orderID).
		Update("status", string(domain.ReservationReleased))
	if res.Error != nil {
		return pkgerrors.Wrapf(res.Error, "mark reservation released order=%d", orderID)
	}
	if res.RowsAffected == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

type gormMessageInbox struct {
	db *gorm.DB
}

func (i *gormMessageInbox) TryConsume(ctx context.Context, ref mq.MessageRef) (bool, error) {
	return inbox.TryConsume(i.db.WithContext(ctx), ref)
}
