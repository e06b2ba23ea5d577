package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

// orderRepositoryInMemory: in-memory реализация OrderRepository поверх общего Store.
type orderRepositoryInMemory struct {
	store *Store
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepositoryInMemory{store: store}
}

// Create проверяет все ссылки на товары и только потом пишет заказ, позиции и событие.
// Под одной блокировкой это эквивалент транзакции: при ошибке ничего не записано.
func (r *orderRepositoryInMemory) Create(ctx context.Context, draft domain.OrderDraft) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	if err := domain.ValidateLines(draft.Lines); err != nil {
		return domain.Order{}, err
	}

	createdAt := draft.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, line := range draft.Lines {
		if _, ok := r.store.products[line.ProductID]; !ok {
			return domain.Order{}, &domain.MissingProductError{ProductID: line.ProductID}
		}
	}

	r.store.nextOrderID++
	rec := &orderRecord{
		header: domain.Order{
			ID:              r.store.nextOrderID,
			BuyerName:       draft.BuyerName,
			ContactInfo:     draft.ContactInfo,
			DeliveryAddress: draft.DeliveryAddress,
			Status:          domain.OrderStatusPending,
			CreatedAt:       createdAt,
		},
		items: make([]domain.OrderItem, 0, len(draft.Lines)),
	}
	for _, line := range draft.Lines {
		r.store.nextItemID++
		rec.items = append(rec.items, domain.OrderItem{
			ID:        r.store.nextItemID,
			OrderID:   rec.header.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}

	order := r.store.snapshot(rec)
	msg, err := domain.NewOrderEventMessage(domain.EventOrderCreated, order, createdAt)
	if err != nil {
		return domain.Order{}, err
	}

	r.store.orders[rec.header.ID] = rec
	r.store.enqueueLocked(msg, uuid.NewString())

	return order, nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(ctx context.Context, id int64) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	rec, ok := r.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.store.snapshot(rec), nil
}

// List возвращает все заказы: сначала новые, при равном времени сначала больший ID.
func (r *orderRepositoryInMemory) List(ctx context.Context) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.store.orders))
	for _, rec := range r.store.orders {
		result = append(result, r.store.snapshot(rec))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return result, nil
}

// UpdateStatus меняет только статус заголовка, позиции не трогает.
func (r *orderRepositoryInMemory) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	if !status.Valid() {
		return domain.Order{}, domain.ErrInvalidStatus
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	rec, ok := r.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	header := rec.header
	header.Status = status
	msg, err := domain.NewOrderEventMessage(domain.EventOrderStatusChanged, header, time.Now().UTC())
	if err != nil {
		return domain.Order{}, err
	}

	rec.header = header
	r.store.enqueueLocked(msg, uuid.NewString())

	return header, nil
}

// Delete удаляет заказ вместе с позициями.
func (r *orderRepositoryInMemory) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	rec, ok := r.store.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}

	msg, err := domain.NewOrderEventMessage(domain.EventOrderDeleted, rec.header, time.Now().UTC())
	if err != nil {
		return err
	}

	delete(r.store.orders, id)
	r.store.enqueueLocked(msg, uuid.NewString())

	return nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
