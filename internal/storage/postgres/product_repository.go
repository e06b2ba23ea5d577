package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, price_per_unit
		FROM products
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return products, nil
}

func (r *productRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	return scanProduct(r.db.QueryRowContext(ctx, `
		SELECT id, name, price_per_unit
		FROM products
		WHERE id = $1
	`, id))
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	return scanProduct(r.db.QueryRowContext(ctx, `
		INSERT INTO products (name, price_per_unit)
		VALUES ($1, $2)
		RETURNING id, name, price_per_unit
	`, product.Name, product.UnitPrice))
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	return scanProduct(r.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $1, price_per_unit = $2
		WHERE id = $3
		RETURNING id, name, price_per_unit
	`, product.Name, product.UnitPrice, product.ID))
}

// Delete полагается на ON DELETE RESTRICT: ссылка из order_items даёт 23503.
func (r *productRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrProductInUse
		}
		return fmt.Errorf("delete product: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for product delete: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}

	return nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.UnitPrice); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("scan product: %w", err)
	}
	return p, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
