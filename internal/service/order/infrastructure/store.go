// internal/service/order/infrastructure/store.go
package infrastructure

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stocksaga/internal/pkg/inbox"
	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/service/order/domain"
)

// Store 基于 gorm 的持久化入口，同时充当 UnitOfWork。
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(r domain.Repos) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(reposOn(tx))
	})
}

// Orders 事务外的只读订单访问，用于查询接口。
func (s *Store) Orders() domain.OrderRepository {
	return &gormOrderRepository{db: s.db}
}

func reposOn(tx *gorm.DB) domain.Repos {
	return domain.Repos{
		Orders:  &gormOrderRepository{db: tx},
		Catalog: &gormProductCatalog{db: tx},
		Inbox:   &gormMessageInbox{db: tx},
	}
}

type gormOrderRepository struct {
	db *gorm.DB
}

func (r *gormOrderRepository) FindByID(ctx context.Context, orderID int64) (*domain.Order, error) {
	var m OrderModel
	err := r.db.WithContext(ctx).Preload("Items").First(&m, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, pkgerrors.Wrapf(err, "find order %d", orderID)
	}
	return toOrder(&m), nil
}

func (r *gormOrderRepository) List(ctx context.Context, limit, offset int) ([]*domain.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var models []OrderModel
	err := r.db.WithContext(ctx).Preload("Items").
		Order("id DESC").Limit(limit).Offset(offset).Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list orders")
	}
	orders := make([]*domain.Order, 0, len(models))
	for i := range models {
		orders = append(orders, toOrder(&models[i]))
	}
	return orders, nil
}

func (r *gormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	m := OrderModel{
		CustomerName: order.CustomerName,
		Total:        order.Total,
		Status:       string(order.Status),
	}
	for _, it := range order.Items {
		m.Items = append(m.Items, OrderItemModel{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return pkgerrors.Wrap(err, "create order")
	}
	order.ID = m.ID
	order.CreatedAt = m.CreatedAt
	return nil
}

func (r *gormOrderRepository) UpdateStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error {
	res := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ?", orderID).
		Update("status", string(status))
	if res.Error != nil {
		return pkgerrors.Wrapf(res.Error, "update order %d status", orderID)
	}
	if res.RowsAffected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

type gormProductCatalog struct {
	db *gorm.DB
}

func (c *gormProductCatalog) FindByProductID(ctx context.Context, productID int64) (*domain.Product, error) {
	var m ProductModel
	err := c.db.WithContext(ctx).First(&m, productID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, pkgerrors.Wrapf(err, "find product %d", productID)
	}
	return &domain.Product{ProductID: m.ProductID, Name: m.Name, Price: m.Price}, nil
}

func (c *gormProductCatalog) Upsert(ctx context.Context, product *domain.Product) error {
	m := ProductModel{ProductID: product.ProductID, Name: product.Name, Price: product.Price}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "price", "updated_at"}),
	}).Create(&m).Error
	if err != nil {
		return pkgerrors.Wrapf(err, "upsert product %d", product.ProductID)
	}
	return nil
}

type gormMessageInbox struct {
	db *gorm.DB
}

func (i *gormMessageInbox) TryConsume(ctx context.Context, ref mq.MessageRef) (bool, error) {
	return inbox.TryConsume(i.db.WithContext(ctx), ref)
}
