package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

const orderColumns = `id, buyer_name, contact_info, delivery_address, status, created_at`

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

// Create пишет заголовок, позиции и событие outbox в одной транзакции.
// Ссылка каждой позиции проверяется внутри транзакции под FOR KEY SHARE, чтобы
// товар нельзя было удалить между проверкой и вставкой позиции.
func (r *orderRepository) Create(ctx context.Context, draft domain.OrderDraft) (domain.Order, error) {
	if err := domain.ValidateLines(draft.Lines); err != nil {
		return domain.Order{}, err
	}

	createdAt := draft.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var order domain.Order
	err := r.store.withTx(ctx, nil, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `
			INSERT INTO orders (buyer_name, contact_info, delivery_address, status, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+orderColumns,
			draft.BuyerName, draft.ContactInfo, draft.DeliveryAddress,
			string(domain.OrderStatusPending), createdAt,
		).Scan(
			&order.ID, &order.BuyerName, &order.ContactInfo, &order.DeliveryAddress,
			&status, &order.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		order.Status = domain.OrderStatus(status)
		order.CreatedAt = order.CreatedAt.UTC()

		order.Items = make([]domain.OrderItem, 0, len(draft.Lines))
		for _, line := range draft.Lines {
			item := domain.OrderItem{OrderID: order.ID, ProductID: line.ProductID, Quantity: line.Quantity}

			err := tx.QueryRowContext(ctx, `
				SELECT name, price_per_unit
				FROM products
				WHERE id = $1
				FOR KEY SHARE
			`, line.ProductID).Scan(&item.Name, &item.UnitPrice)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return &domain.MissingProductError{ProductID: line.ProductID}
				}
				return fmt.Errorf("check product %d: %w", line.ProductID, err)
			}

			err = tx.QueryRowContext(ctx, `
				INSERT INTO order_items (order_id, product_id, quantity)
				VALUES ($1, $2, $3)
				RETURNING id
			`, order.ID, line.ProductID, line.Quantity).Scan(&item.ID)
			if err != nil {
				if isForeignKeyViolation(err) {
					return &domain.MissingProductError{ProductID: line.ProductID}
				}
				return fmt.Errorf("insert order item: %w", err)
			}

			order.Items = append(order.Items, item)
		}

		msg, err := domain.NewOrderEventMessage(domain.EventOrderCreated, order, createdAt)
		if err != nil {
			return err
		}
		return insertOutboxMessage(ctx, tx, msg)
	})
	if err != nil {
		return domain.Order{}, err
	}

	return order, nil
}

func (r *orderRepository) Get(ctx context.Context, id int64) (domain.Order, error) {
	var order domain.Order
	err := r.store.withTx(ctx, snapshotTxOptions, func(tx *sql.Tx) error {
		var err error
		order, err = scanOrder(tx.QueryRowContext(ctx, `
			SELECT `+orderColumns+`
			FROM orders
			WHERE id = $1
		`, id))
		if err != nil {
			return err
		}

		items, err := queryItems(ctx, tx, `
			SELECT oi.id, oi.order_id, oi.product_id, p.name, p.price_per_unit, oi.quantity
			FROM order_items oi
			JOIN products p ON p.id = oi.product_id
			WHERE oi.order_id = $1
			ORDER BY oi.id ASC
		`, id)
		if err != nil {
			return err
		}
		order.Items = items[id]
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	return order, nil
}

func (r *orderRepository) List(ctx context.Context) ([]domain.Order, error) {
	var orders []domain.Order
	err := r.store.withTx(ctx, snapshotTxOptions, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT `+orderColumns+`
			FROM orders
			ORDER BY created_at DESC, id DESC
		`)
		if err != nil {
			return fmt.Errorf("list orders: %w", err)
		}
		defer rows.Close()

		orders = make([]domain.Order, 0)
		for rows.Next() {
			order, err := scanOrder(rows)
			if err != nil {
				return err
			}
			orders = append(orders, order)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate order rows: %w", err)
		}
		if len(orders) == 0 {
			return nil
		}

		// Снимок REPEATABLE READ: позиции видны ровно для тех заказов, что выбраны выше.
		items, err := queryItems(ctx, tx, `
			SELECT oi.id, oi.order_id, oi.product_id, p.name, p.price_per_unit, oi.quantity
			FROM order_items oi
			JOIN products p ON p.id = oi.product_id
			ORDER BY oi.order_id, oi.id
		`)
		if err != nil {
			return err
		}
		for i := range orders {
			orders[i].Items = items[orders[i].ID]
		}
		return nil
	})
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
	err := r.store.withTx(ctx, nil, func(tx *sql.Tx) error {
		var err error
		header, err = scanOrder(tx.QueryRowContext(ctx, `
			UPDATE orders
			SET status = $1
			WHERE id = $2
			RETURNING `+orderColumns,
			string(status), id,
		))
		if err != nil {
			return err
		}

		msg, err := domain.NewOrderEventMessage(domain.EventOrderStatusChanged, header, time.Now().UTC())
		if err != nil {
			return err
		}
		return insertOutboxMessage(ctx, tx, msg)
	})
	if err != nil {
		return domain.Order{}, err
	}

	return header, nil
}

func (r *orderRepository) Delete(ctx context.Context, id int64) error {
	return r.store.withTx(ctx, nil, func(tx *sql.Tx) error {
		header, err := scanOrder(tx.QueryRowContext(ctx, `
			DELETE FROM orders
			WHERE id = $1
			RETURNING `+orderColumns,
			id,
		))
		if err != nil {
			return err
		}

		msg, err := domain.NewOrderEventMessage(domain.EventOrderDeleted, header, time.Now().UTC())
		if err != nil {
			return err
		}
		return insertOutboxMessage(ctx, tx, msg)
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	err := row.Scan(
		&order.ID, &order.BuyerName, &order.ContactInfo, &order.DeliveryAddress,
		&status, &order.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}

	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	return order, nil
}

// queryItems возвращает позиции, сгруппированные по order_id.
func queryItems(ctx context.Context, tx *sql.Tx, query string, args ...any) (map[int64][]domain.OrderItem, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]domain.OrderItem)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Name, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		result[item.OrderID] = append(result[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return result, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
