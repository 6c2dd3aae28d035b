// internal/service/order/infrastructure/models.go
package infrastructure

import (
	"time"

	"gorm.io/gorm"

	"stocksaga/internal/pkg/inbox"
	"stocksaga/internal/service/order/domain"
)

type OrderModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	CustomerName string `gorm:"type:varchar(128);not null"`
	Total        float64
	Status       string `gorm:"type:varchar(16);not null;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Items []OrderItemModel `gorm:"foreignKey:OrderID"`
}

func (OrderModel) TableName() string { return "orders" }

type OrderItemModel struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	OrderID   int64 `gorm:"index;not null"`
	ProductID int64 `gorm:"not null"`
	Quantity  int   `gorm:"not null"`
	UnitPrice float64
}

func (OrderItemModel) TableName() string { return "order_items" }

// ProductModel 商品影子表，键是上游的商品号。
type ProductModel struct {
	ProductID int64  `gorm:"primaryKey"`
	Name      string `gorm:"type:varchar(255)"`
	Price     float64
	UpdatedAt time.Time
}

func (ProductModel) TableName() string { return "products" }

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&OrderModel{},
		&OrderItemModel{},
		&ProductModel{},
		&inbox.Message{},
	)
}

func toOrder(m *OrderModel) *domain.Order {
	o := &domain.Order{
		ID:           m.ID,
		CustomerName: m.CustomerName,
		Total:        m.Total,
		Status:       domain.OrderStatus(m.Status),
		CreatedAt:    m.CreatedAt,
	}
	for _, it := range m.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return o
}
