// Package ordering: сервис оформления и сопровождения оптовых заказов:
// валидация входа, атомарное создание через репозиторий, чтение и смена статуса.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
	"github.com/vladislavdragonenkov/bulk-oms/internal/metrics"
)

// PlaceOrderRequest: входные данные оформления заказа.
// Отсутствующий productId или quantity передаётся нулём.
type PlaceOrderRequest struct {
	BuyerName       string
	ContactInfo     string
	DeliveryAddress string
	Items           []domain.OrderLine
}

// Confirmation: минимальное подтверждение оформленного заказа.
type Confirmation struct {
	OrderID   int64
	Status    domain.OrderStatus
	CreatedAt time.Time
}

// Options задаёт необязательные зависимости сервиса.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.OrderMetrics
	Clock   func() time.Time
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт коллекторы метрик заказов.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithClock подменяет источник времени создания заказа.
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// Service: Order Service: единственная точка входа в запись заказов.
type Service struct {
	orders  domain.OrderRepository
	logger  *log.Entry
	metrics *metrics.OrderMetrics
	now     func() time.Time
}

// NewService создаёт сервис заказов поверх репозитория.
func NewService(orders domain.OrderRepository, options ...Option) *Service {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "ordering-service")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		orders:  orders,
		logger:  logger,
		metrics: opts.Metrics,
		now:     clock,
	}
}

// PlaceOrder проверяет запрос целиком и только затем передаёт его в атомарное создание.
// Ссылка на несуществующий товар превращается в ошибку валидации: заказ не сохраняется.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (Confirmation, error) {
	draft := domain.OrderDraft{
		BuyerName:       req.BuyerName,
		ContactInfo:     req.ContactInfo,
		DeliveryAddress: req.DeliveryAddress,
		Lines:           append([]domain.OrderLine(nil), req.Items...),
	}.Normalize()

	if errs := draft.ValidateInvariants(); len(errs) > 0 {
		err := errors.Join(errs...)
		s.metrics.RecordOrderRejected()
		s.logger.WithError(err).Debug("order request rejected")
		return Confirmation{}, err
	}

	// PostgreSQL хранит микросекунды; усечение делает ответ равным последующему чтению.
	draft.CreatedAt = s.now().UTC().Truncate(time.Microsecond)

	started := time.Now()
	order, err := s.orders.Create(ctx, draft)
	if err != nil {
		var missing *domain.MissingProductError
		if errors.As(err, &missing) {
			s.metrics.RecordOrderRejected()
			s.logger.WithField("product_id", missing.ProductID).Debug("order references unknown product")
			return Confirmation{}, fmt.Errorf("%w: %d", domain.ErrUnknownProduct, missing.ProductID)
		}
		if domain.IsValidation(err) {
			s.metrics.RecordOrderRejected()
			return Confirmation{}, err
		}

		s.metrics.RecordOrderFailed()
		s.logger.WithError(err).WithField("items", len(draft.Lines)).Error("failed to create order")
		return Confirmation{}, fmt.Errorf("create order: %w", err)
	}

	s.metrics.RecordOrderPlaced(len(order.Items), time.Since(started))
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"items":    len(order.Items),
	}).Info("order placed")

	return Confirmation{
		OrderID:   order.ID,
		Status:    order.Status,
		CreatedAt: order.CreatedAt,
	}, nil
}

// GetOrder возвращает заказ с позициями по текущим ценам каталога.
func (s *Service) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	if id <= 0 {
		return domain.Order{}, domain.ErrInvalidID
	}

	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, s.readError(err, "GetOrder", id)
	}
	return order, nil
}

// GetOrderStatus возвращает только статус заказа.
func (s *Service) GetOrderStatus(ctx context.Context, id int64) (domain.OrderStatus, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return "", err
	}
	return order.Status, nil
}

// ListOrders возвращает все заказы, новые первыми.
func (s *Service) ListOrders(ctx context.Context) ([]domain.Order, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		s.logger.WithError(err).Error("failed to list orders")
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus проверяет значение по перечислению до обращения к репозиторию,
// сверяет переход с текущим статусом заказа и возвращает обновлённый заголовок.
func (s *Service) UpdateStatus(ctx context.Context, id int64, raw string) (domain.Order, error) {
	if id <= 0 {
		return domain.Order{}, domain.ErrInvalidID
	}

	status, err := domain.ParseOrderStatus(raw)
	if err != nil {
		s.logger.WithField("status", raw).Debug("status update rejected")
		return domain.Order{}, err
	}

	current, err := s.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, s.readError(err, "UpdateStatus", id)
	}
	if !domain.CanTransition(current.Status, status) {
		s.logger.WithFields(log.Fields{
			"order_id":    id,
			"from_status": current.Status,
			"status":      status,
		}).Warn("status transition rejected")
		return domain.Order{}, domain.ErrInvalidStatus
	}

	header, err := s.orders.UpdateStatus(ctx, id, status)
	if err != nil {
		if domain.IsNotFound(err) || domain.IsValidation(err) {
			return domain.Order{}, err
		}
		s.logger.WithError(err).WithField("order_id", id).Error("failed to update order status")
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}

	s.metrics.RecordStatusUpdate(string(header.Status))
	s.logger.WithFields(log.Fields{
		"order_id":    id,
		"from_status": current.Status,
		"status":      header.Status,
	}).Info("order status updated")

	return header, nil
}

// DeleteOrder удаляет заказ вместе с позициями.
func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	if id <= 0 {
		return domain.ErrInvalidID
	}

	if err := s.orders.Delete(ctx, id); err != nil {
		if domain.IsNotFound(err) {
			return err
		}
		s.logger.WithError(err).WithField("order_id", id).Error("failed to delete order")
		return fmt.Errorf("delete order: %w", err)
	}

	s.metrics.RecordOrderDeleted()
	s.logger.WithField("order_id", id).Info("order deleted")
	return nil
}

func (s *Service) readError(err error, operation string, id int64) error {
	if domain.IsNotFound(err) {
		return err
	}

	s.logger.WithError(err).WithFields(log.Fields{
		"operation": operation,
		"order_id":  id,
	}).Error("failed to load order")
	return fmt.Errorf("load order: %w", err)
}
