package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// AggregateTypeOrder: тип агрегата для событий заказа в outbox.
const AggregateTypeOrder = "order"

// Типы событий заказа.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderDeleted       = "order.deleted"
)

// OrderEventItem: позиция в payload события.
type OrderEventItem struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name,omitempty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

// OrderEvent: payload события заказа, которое уходит во внешние системы
// (Kafka, live-лента администратора).
type OrderEvent struct {
	EventType  string           `json:"eventType"`
	OrderID    int64            `json:"orderId"`
	BuyerName  string           `json:"buyerName,omitempty"`
	Status     OrderStatus      `json:"status,omitempty"`
	Items      []OrderEventItem `json:"items,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	OccurredAt time.Time        `json:"occurredAt"`
}

// NewOrderEventMessage собирает сообщение outbox для события заказа.
// ID сообщения назначает репозиторий при записи.
func NewOrderEventMessage(eventType string, order Order, occurredAt time.Time) (OutboxMessage, error) {
	event := OrderEvent{
		EventType:  eventType,
		OrderID:    order.ID,
		BuyerName:  order.BuyerName,
		Status:     order.Status,
		CreatedAt:  order.CreatedAt,
		OccurredAt: occurredAt.UTC(),
	}
	if eventType == EventOrderCreated {
		event.Items = make([]OrderEventItem, 0, len(order.Items))
		for _, item := range order.Items {
			event.Items = append(event.Items, OrderEventItem{
				ProductID: item.ProductID,
				Name:      item.Name,
				UnitPrice: item.UnitPrice,
				Quantity:  item.Quantity,
			})
		}
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	return OutboxMessage{
		AggregateType: AggregateTypeOrder,
		AggregateID:   strconv.FormatInt(order.ID, 10),
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     occurredAt.UTC(),
	}, nil
}

// DeadLetter: payload сообщения в dead letter topic: исходное событие outbox
// и причина, по которой его не удалось доставить.
type DeadLetter struct {
	OutboxID       string          `json:"outboxId"`
	AggregateType  string          `json:"aggregateType"`
	AggregateID    string          `json:"aggregateId"`
	EventType      string          `json:"eventType"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publishError"`
	DLQPublishedAt time.Time       `json:"dlqPublishedAt"`
}

// NewDeadLetter описывает событие, которое не удалось доставить.
func NewDeadLetter(msg OutboxMessage, publishErr error, at time.Time) DeadLetter {
	letter := DeadLetter{
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		AggregateID:    msg.AggregateID,
		EventType:      msg.EventType,
		Payload:        json.RawMessage(msg.Payload),
		DLQPublishedAt: at.UTC(),
	}
	if publishErr != nil {
		letter.PublishError = publishErr.Error()
	}
	return letter
}

// Message упаковывает dead letter в сообщение с идентификаторами исходного события.
func (d DeadLetter) Message(createdAt time.Time) (OutboxMessage, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal dead letter %s: %w", d.OutboxID, err)
	}
	return OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       payload,
		CreatedAt:     createdAt,
	}, nil
}

// DecodeOrderEvent разбирает payload события заказа из outbox.
func DecodeOrderEvent(msg OutboxMessage) (OrderEvent, error) {
	if msg.AggregateType != "" && msg.AggregateType != AggregateTypeOrder {
		return OrderEvent{}, fmt.Errorf("outbox message %s is not an order event: %s", msg.ID, msg.AggregateType)
	}
	var event OrderEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return OrderEvent{}, fmt.Errorf("decode order event %s: %w", msg.ID, err)
	}
	return event, nil
}
