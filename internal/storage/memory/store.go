package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

// orderRecord: заголовок заказа и его позиции. Позиции хранят только ссылку
// на товар и количество, имя и цена подтягиваются из каталога при чтении.
type orderRecord struct {
	header domain.Order
	items  []domain.OrderItem
}

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	seq        int64
	status     string
	attemptCnt int
	updatedAt  time.Time
}

// Store: общее in-memory хранилище каталога, заказов и outbox.
// Один мьютекс на всё хранилище: создание заказа видит товары, пишет позиции и
// событие outbox как одна операция, читатели не видят промежуточного состояния.
type Store struct {
	mu sync.RWMutex

	products map[int64]domain.Product
	orders   map[int64]*orderRecord
	outbox   map[string]*outboxRecord

	nextProductID int64
	nextOrderID   int64
	nextItemID    int64
	nextOutboxSeq int64
}

// NewStore создаёт пустое хранилище. Идентификаторы начинаются с 1.
func NewStore() *Store {
	return &Store{
		products: make(map[int64]domain.Product),
		orders:   make(map[int64]*orderRecord),
		outbox:   make(map[string]*outboxRecord),
	}
}

// Ping всегда успешен: хранилище живёт в памяти процесса.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close ничего не освобождает и нужен для единообразия с SQL-хранилищами.
func (s *Store) Close() error {
	return nil
}

// resolveItems заполняет Name/UnitPrice позиций по текущему каталогу.
// Вызывать под s.mu.
func (s *Store) resolveItems(items []domain.OrderItem) []domain.OrderItem {
	out := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		if product, ok := s.products[item.ProductID]; ok {
			item.Name = product.Name
			item.UnitPrice = product.UnitPrice
		}
		out = append(out, item)
	}
	return out
}

// snapshot собирает заказ с позициями. Вызывать под s.mu.
func (s *Store) snapshot(rec *orderRecord) domain.Order {
	order := rec.header
	order.Items = s.resolveItems(rec.items)
	return order
}

// enqueueLocked кладёт событие в outbox. Вызывать под s.mu (write).
func (s *Store) enqueueLocked(msg domain.OutboxMessage, id string) {
	s.nextOutboxSeq++
	msg.ID = id
	s.outbox[id] = &outboxRecord{
		msg:       msg,
		seq:       s.nextOutboxSeq,
		status:    outboxStatusPending,
		updatedAt: msg.CreatedAt,
	}
}

// productReferenced проверяет, ссылается ли хоть одна позиция на товар. Вызывать под s.mu.
func (s *Store) productReferenced(productID int64) bool {
	for _, rec := range s.orders {
		for _, item := range rec.items {
			if item.ProductID == productID {
				return true
			}
		}
	}
	return false
}
