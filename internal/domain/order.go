package domain

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл оптового заказа.
type OrderStatus string

const (
	// OrderStatusPending: начальный статус, выставляется автоматически при создании.
	OrderStatusPending OrderStatus = "Pending"
	// OrderStatusInProgress: заказ собирается.
	OrderStatusInProgress OrderStatus = "In Progress"
	// OrderStatusDelivered: заказ доставлен покупателю.
	OrderStatusDelivered OrderStatus = "Delivered"
)

// OrderStatuses возвращает перечисление допустимых статусов в порядке жизненного цикла.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusPending, OrderStatusInProgress, OrderStatusDelivered}
}

// Valid проверяет, что статус входит в перечисление.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusInProgress, OrderStatusDelivered:
		return true
	default:
		return false
	}
}

// ParseOrderStatus разбирает статус из внешнего запроса.
// Сравнение точное: "in progress" или " Pending" не принимаются.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(raw)
	if !status.Valid() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// CanTransition сообщает, разрешён ли переход между статусами.
// Порядок не навязывается: допустим любой переход между валидными статусами,
// включая Delivered -> Pending.
func CanTransition(from, to OrderStatus) bool {
	return from.Valid() && to.Valid()
}

// OrderLine: позиция входящего запроса: товар и количество.
type OrderLine struct {
	ProductID int64
	Quantity  int
}

// QuantityValid: количество положительно и помещается в INTEGER позиции заказа.
func (l OrderLine) QuantityValid() bool {
	return l.Quantity > 0 && l.Quantity <= math.MaxInt32
}

// ValidateLines проверяет позиции на уровне хранилища: репозитории отказывают
// так же, как ограничения схемы, даже если черновик не прошёл через ValidateInvariants.
func ValidateLines(lines []OrderLine) error {
	if len(lines) == 0 {
		return ErrItemsRequired
	}
	for _, line := range lines {
		if !line.QuantityValid() {
			return ErrItemQtyInvalid
		}
	}
	return nil
}

// OrderDraft: заказ до сохранения. ID и статус назначает хранилище.
type OrderDraft struct {
	BuyerName       string
	ContactInfo     string
	DeliveryAddress string
	Lines           []OrderLine
	CreatedAt       time.Time
}

// Normalize обрезает пробелы в текстовых полях заказа.
func (d OrderDraft) Normalize() OrderDraft {
	d.BuyerName = strings.TrimSpace(d.BuyerName)
	d.ContactInfo = strings.TrimSpace(d.ContactInfo)
	d.DeliveryAddress = strings.TrimSpace(d.DeliveryAddress)
	return d
}

// ValidateInvariants проверяет черновик заказа и возвращает список замечаний.
// Пустой результат означает, что черновик можно передавать в репозиторий.
func (d OrderDraft) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(d.BuyerName) == "" {
		errs = append(errs, ErrBuyerNameRequired)
	}
	if strings.TrimSpace(d.ContactInfo) == "" {
		errs = append(errs, ErrContactInfoRequired)
	}
	if strings.TrimSpace(d.DeliveryAddress) == "" {
		errs = append(errs, ErrDeliveryAddressRequired)
	}
	if len(d.Lines) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	for _, line := range d.Lines {
		if line.ProductID <= 0 {
			errs = append(errs, ErrItemProductRequired)
		}
		if !line.QuantityValid() {
			errs = append(errs, ErrItemQtyInvalid)
		}
	}

	return errs
}

// OrderItem: сохранённая позиция заказа. Name и UnitPrice не хранятся в позиции,
// а подтягиваются из текущей карточки товара при чтении.
type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Order агрегирует заголовок заказа и его позиции.
type Order struct {
	ID              int64
	BuyerName       string
	ContactInfo     string
	DeliveryAddress string
	Status          OrderStatus
	CreatedAt       time.Time
	Items           []OrderItem
}
