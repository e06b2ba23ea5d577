package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

const itemsWithProductsSelect = "oi.id, oi.order_id, oi.product_id, p.name, p.price_per_unit, oi.quantity"

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт gorm-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

// Create выполняет вставку заголовка, проверку товаров, вставку позиций и outbox
// в одной транзакции gorm; любая ошибка откатывает всё.
func (r *orderRepository) Create(ctx context.Context, draft domain.OrderDraft) (domain.Order, error) {
	if err := domain.ValidateLines(draft.Lines); err != nil {
		return domain.Order{}, err
	}

	createdAt := draft.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var order domain.Order
	err := r.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		header := orderModel{
			BuyerName:       draft.BuyerName,
			ContactInfo:     draft.ContactInfo,
			DeliveryAddress: draft.DeliveryAddress,
			Status:          string(domain.OrderStatusPending),
			CreatedAt:       createdAt,
		}
		if err := tx.Omit("Items").Create(&header).Error; err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		order = header.toDomain()
		order.Items = make([]domain.OrderItem, 0, len(draft.Lines))

		for _, line := range draft.Lines {
			var product productModel
			if err := r.store.lockProductForKeyShare(tx).First(&product, line.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return &domain.MissingProductError{ProductID: line.ProductID}
				}
				return fmt.Errorf("check product %d: %w", line.ProductID, err)
			}

			item := orderItemModel{OrderID: header.ID, ProductID: line.ProductID, Quantity: line.Quantity}
			if err := tx.Omit("Product").Create(&item).Error; err != nil {
				if errors.Is(err, gorm.ErrForeignKeyViolated) {
					return &domain.MissingProductError{ProductID: line.ProductID}
				}
				return fmt.Errorf("insert order item: %w", err)
			}

			order.Items = append(order.Items, domain.OrderItem{
				ID:        item.ID,
				OrderID:   header.ID,
				ProductID: product.ID,
				Name:      product.Name,
				UnitPrice: product.PricePerUnit,
				Quantity:  item.Quantity,
			})
		}

		msg, err := domain.NewOrderEventMessage(domain.EventOrderCreated, order, createdAt)
		if err != nil {
			return err
		}
		return enqueueOutbox(tx, msg)
	})
	if err != nil {
		return domain.Order{}, err
	}

	return order, nil
}

func (r *orderRepository) Get(ctx context.Context, id int64) (domain.Order, error) {
	var order domain.Order
	err := r.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var header orderModel
		if err := tx.First(&header, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrOrderNotFound
			}
			return fmt.Errorf("select order: %w", err)
		}

		items, err := loadItems(tx.Where("oi.order_id = ?", id))
		if err != nil {
			return err
		}

		order = header.toDomain()
		order.Items = items[id]
		return nil
	}, r.store.readTxOptions()...)
	if err != nil {
		return domain.Order{}, err
	}

	return order, nil
}

func (r *orderRepository) List(ctx context.Context) ([]domain.Order, error) {
	var orders []domain.Order
	err := r.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var headers []orderModel
		if err := tx.Order("created_at DESC, id DESC").Find(&headers).Error; err != nil {
			return fmt.Errorf("list orders: %w", err)
		}

		orders = make([]domain.Order, 0, len(headers))
		if len(headers) == 0 {
			return nil
		}

		items, err := loadItems(tx)
		if err != nil {
			return err
		}
		for _, h := range headers {
			order := h.toDomain()
			order.Items = items[h.ID]
			orders = append(orders, order)
		}
		return nil
	}, r.store.readTxOptions()...)
	if err != nil {
		return nil, err
	}

	return orders, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, domain.ErrInvalidStatus
	}

	var header domain.Order
	err := r.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&orderModel{}).Where("id = ?", id).Update("status", string(status))
		if res.Error != nil {
			return fmt.Errorf("update order status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrOrderNotFound
		}

		var m orderModel
		if err := tx.First(&m, id).Error; err != nil {
			return fmt.Errorf("reload order: %w", err)
		}
		header = m.toDomain()

		msg, err := domain.NewOrderEventMessage(domain.EventOrderStatusChanged, header, time.Now().UTC())
		if err != nil {
			return err
		}
		return enqueueOutbox(tx, msg)
	})
	if err != nil {
		return domain.Order{}, err
	}

	return header, nil
}

func (r *orderRepository) Delete(ctx context.Context, id int64) error {
	return r.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m orderModel
		if err := tx.First(&m, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrOrderNotFound
			}
			return fmt.Errorf("select order: %w", err)
		}

		// Позиции удаляет ON DELETE CASCADE.
		if err := tx.Delete(&orderModel{}, id).Error; err != nil {
			return fmt.Errorf("delete order: %w", err)
		}

		msg, err := domain.NewOrderEventMessage(domain.EventOrderDeleted, m.toDomain(), time.Now().UTC())
		if err != nil {
			return err
		}
		return enqueueOutbox(tx, msg)
	})
}

// loadItems читает позиции с текущими именем и ценой товара, сгруппированные по заказу.
func loadItems(tx *gorm.DB) (map[int64][]domain.OrderItem, error) {
	var rows []itemRow
	err := tx.Table("order_items AS oi").
		Select(itemsWithProductsSelect).
		Joins("JOIN products p ON p.id = oi.product_id").
		Order("oi.order_id, oi.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}

	result := make(map[int64][]domain.OrderItem)
	for _, row := range rows {
		result[row.OrderID] = append(result[row.OrderID], domain.OrderItem{
			ID:        row.ID,
			OrderID:   row.OrderID,
			ProductID: row.ProductID,
			Name:      row.Name,
			UnitPrice: row.PricePerUnit,
			Quantity:  row.Quantity,
		})
	}
	return result, nil
}

func (m orderModel) toDomain() domain.Order {
	return domain.Order{
		ID:              m.ID,
		BuyerName:       m.BuyerName,
		ContactInfo:     m.ContactInfo,
		DeliveryAddress: m.DeliveryAddress,
		Status:          domain.OrderStatus(m.Status),
		CreatedAt:       m.CreatedAt.UTC(),
	}
}

var _ domain.OrderRepository = (*orderRepository)(nil)
