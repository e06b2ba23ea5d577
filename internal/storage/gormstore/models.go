package gormstore

import (
	"time"

	"github.com/shopspring/decimal"
)

// productModel: строка каталога.
type productModel struct {
	ID           int64           `gorm:"primaryKey;autoIncrement"`
	Name         string          `gorm:"not null"`
	PricePerUnit decimal.Decimal `gorm:"column:price_per_unit;type:numeric(10,2);not null;check:price_per_unit > 0"`
}

func (productModel) TableName() string {
	return "products"
}

// orderModel: заголовок заказа. Позиции удаляются вместе с заказом (ON DELETE CASCADE).
type orderModel struct {
	ID              int64            `gorm:"primaryKey;autoIncrement"`
	BuyerName       string           `gorm:"not null"`
	ContactInfo     string           `gorm:"not null"`
	DeliveryAddress string           `gorm:"not null"`
	Status          string           `gorm:"size:32;not null;default:'Pending';check:chk_orders_status,status IN ('Pending','In Progress','Delivered')"`
	CreatedAt       time.Time        `gorm:"not null;index"`
	Items           []orderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (orderModel) TableName() string {
	return "orders"
}

// orderItemModel: позиция заказа; товар с позициями удалить нельзя (ON DELETE RESTRICT).
type orderItemModel struct {
	ID        int64        `gorm:"primaryKey;autoIncrement"`
	OrderID   int64        `gorm:"not null;index"`
	ProductID int64        `gorm:"not null;index"`
	Product   productModel `gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT"`
	Quantity  int          `gorm:"not null;check:quantity > 0"`
}

func (orderItemModel) TableName() string {
	return "order_items"
}

// itemRow: позиция, соединённая с текущей карточкой товара.
type itemRow struct {
	ID           int64
	OrderID      int64
	ProductID    int64
	Name         string
	PricePerUnit decimal.Decimal
	Quantity     int
}

type outboxModel struct {
	ID            string    `gorm:"primaryKey;size:64"`
	AggregateType string    `gorm:"not null"`
	AggregateID   string    `gorm:"not null"`
	EventType     string    `gorm:"not null"`
	Payload       []byte    `gorm:"not null"`
	Status        string    `gorm:"size:16;not null;index"`
	AttemptCount  int       `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (outboxModel) TableName() string {
	return "outbox_messages"
}

type idempotencyModel struct {
	Key          string    `gorm:"column:key;primaryKey;size:255"`
	RequestHash  string    `gorm:"not null"`
	ResponseBody []byte
	HTTPStatus   int       `gorm:"column:http_status"`
	Status       string    `gorm:"size:16;not null"`
	TTLAt        time.Time `gorm:"column:ttl_at;not null;index"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (idempotencyModel) TableName() string {
	return "idempotency_keys"
}

func allModels() []any {
	return []any{
		&productModel{},
		&orderModel{},
		&orderItemModel{},
		&outboxModel{},
		&idempotencyModel{},
	}
}
