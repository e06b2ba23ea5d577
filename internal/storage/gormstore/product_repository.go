package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository создаёт gorm-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.db}
}

func (r *productRepository) List(ctx context.Context) ([]domain.Product, error) {
	var models []productModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	products := make([]domain.Product, 0, len(models))
	for _, m := range models {
		products = append(products, m.toDomain())
	}
	return products, nil
}

func (r *productRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	var m productModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	return m.toDomain(), nil
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	m := productModel{Name: product.Name, PricePerUnit: product.UnitPrice}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	return m.toDomain(), nil
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	res := r.db.WithContext(ctx).
		Model(&productModel{}).
		Where("id = ?", product.ID).
		Updates(map[string]any{
			"name":           product.Name,
			"price_per_unit": product.UnitPrice,
		})
	if res.Error != nil {
		return domain.Product{}, fmt.Errorf("update product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// Delete проверяет ссылки из позиций в той же транзакции, что и удаление.
// Внешний ключ RESTRICT остаётся последней линией защиты.
func (r *productRepository) Delete(ctx context.Context, id int64) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Model(&orderItemModel{}).Where("product_id = ?", id).Count(&refs).Error; err != nil {
			return fmt.Errorf("count product references: %w", err)
		}
		if refs > 0 {
			return domain.ErrProductInUse
		}

		res := tx.Delete(&productModel{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrProductNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return domain.ErrProductInUse
		}
		if errors.Is(err, domain.ErrProductInUse) || errors.Is(err, domain.ErrProductNotFound) {
			return err
		}
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

func (m productModel) toDomain() domain.Product {
	return domain.Product{ID: m.ID, Name: m.Name, UnitPrice: m.PricePerUnit}
}

var _ domain.ProductRepository = (*productRepository)(nil)
