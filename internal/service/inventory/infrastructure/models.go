// internal/service/inventory/infrastructure/models.go
package infrastructure

import (
	"time"

	"stocksaga/internal/pkg/inbox"
	"stocksaga/internal/service/inventory/domain"

	"gorm.io/gorm"
)

// StockItemModel 库存台账表。available 与 reserved 只通过条件 UPDATE 变更。
type StockItemModel struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	ProductID int64 `gorm:"uniqueIndex:uk_stock_product;not null"`
	Available int   `gorm:"not null"`
	Reserved  int   `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (StockItemModel) TableName() string { return "stock_items" }

// StockReservationModel 预占记录表，order_id 唯一保证幂等。
type StockReservationModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	OrderID   int64  `gorm:"uniqueIndex:uk_reservation_order;not null"`
	Status    string `gorm:"type:varchar(16);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Items []StockReservationItemModel `gorm:"foreignKey:ReservationID"`
}

func (StockReservationModel) TableName() string { return "stock_reservations" }

type StockReservationItemModel struct {
	ID            int64 `gorm:"primaryKey;autoIncrement"`
	ReservationID int64 `gorm:"index;not null"`
	ProductID     int64 `gorm:"not null"`
	Quantity      int   `gorm:"not null"`
}

func (StockReservationItemModel) TableName() string { return "stock_reservation_items" }

// AutoMigrate 建表，包括收件箱。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&StockItemModel{},
		&StockReservationModel{},
		&StockReservationItemModel{},
		&inbox.Message{},
	)
}

func toStockItem(m *StockItemModel) *domain.StockItem {
	return &domain.StockItem{
		ID:        m.ID,
		ProductID: m.ProductID,
		Available: m.Available,
		Reserved:  m.Reserved,
		CreatedAt: m.CreatedAt,
	}
}

func toReservation(m *StockReservationModel) *domain.StockReservation {
	r := &domain.StockReservation{
		ID:        m.ID,
		OrderID:   m.OrderID,
		Status:    domain.ReservationStatus(m.Status),
		CreatedAt: m.CreatedAt,
	}
	for _, it := range m.Items {
		r.Items = append(r.Items, domain.ReservationItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
		})
	}
	return r
}
