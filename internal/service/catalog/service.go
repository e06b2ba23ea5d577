// Package catalog: сервис каталога товаров для витрины и администратора.
package catalog

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
	"github.com/vladislavdragonenkov/bulk-oms/internal/metrics"
)

// Service оборачивает ProductRepository валидацией и логированием.
type Service struct {
	products domain.ProductRepository
	logger   *log.Entry
	metrics  *metrics.OrderMetrics
}

// NewService создаёт сервис каталога. logger и m могут быть nil.
func NewService(products domain.ProductRepository, logger *log.Entry, m *metrics.OrderMetrics) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog-service")
	}
	return &Service{products: products, logger: logger, metrics: m}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		s.logger.WithError(err).Error("failed to list products")
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// GetProduct возвращает карточку товара для витрины.
func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	if id <= 0 {
		return domain.Product{}, domain.ErrInvalidID
	}

	product, err := s.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, s.wrap(err, "get", id)
	}
	return product, nil
}

// CreateProduct нормализует и проверяет карточку перед сохранением.
func (s *Service) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	product = domain.NormalizeProduct(product)
	if errs := product.ValidateInvariants(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}

	created, err := s.products.Create(ctx, product)
	if err != nil {
		return domain.Product{}, s.wrap(err, "create", 0)
	}

	s.metrics.RecordCatalogChange("create")
	s.logger.WithField("product_id", created.ID).Info("product created")
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if product.ID <= 0 {
		return domain.Product{}, domain.ErrInvalidID
	}

	product = domain.NormalizeProduct(product)
	if errs := product.ValidateInvariants(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}

	updated, err := s.products.Update(ctx, product)
	if err != nil {
		return domain.Product{}, s.wrap(err, "update", product.ID)
	}

	s.metrics.RecordCatalogChange("update")
	s.logger.WithField("product_id", updated.ID).Info("product updated")
	return updated, nil
}

// DeleteProduct отказывает с ErrProductInUse, если товар есть в заказах.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if id <= 0 {
		return domain.ErrInvalidID
	}

	if err := s.products.Delete(ctx, id); err != nil {
		return s.wrap(err, "delete", id)
	}

	s.metrics.RecordCatalogChange("delete")
	s.logger.WithField("product_id", id).Info("product deleted")
	return nil
}

func (s *Service) wrap(err error, operation string, id int64) error {
	switch {
	case domain.IsNotFound(err), errors.Is(err, domain.ErrProductInUse):
		return err
	default:
		s.logger.WithError(err).WithFields(log.Fields{
			"operation":  operation,
			"product_id": id,
		}).Error("catalog operation failed")
		return fmt.Errorf("%s product: %w", operation, err)
	}
}
