package outbox

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
	"github.com/vladislavdragonenkov/bulk-oms/internal/metrics"
)

// Config: параметры доставки событий заказов.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxAttempts: попыток публикации одного события до dead letter.
	MaxAttempts int
	// RetryBaseDelay удваивается с каждой попыткой, но не больше MaxRetryDelay.
	RetryBaseDelay time.Duration
	MaxRetryDelay  time.Duration
	// StaleAfter: возраст старейшего недоставленного события, после которого
	// воркер предупреждает, что лента заказов отстаёт. 0 выключает проверку.
	StaleAfter time.Duration
}

// DefaultConfig: опрос раз в секунду, 3 попытки с паузой от 50ms.
func DefaultConfig() Config {
	return Config{
		PollInterval:   time.Second,
		BatchSize:      100,
		MaxAttempts:    3,
		RetryBaseDelay: 50 * time.Millisecond,
		MaxRetryDelay:  5 * time.Second,
		StaleAfter:     5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.RetryBaseDelay < 0 {
		c.RetryBaseDelay = 0
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = def.MaxRetryDelay
	}
	if c.MaxRetryDelay < c.RetryBaseDelay {
		c.MaxRetryDelay = c.RetryBaseDelay
	}
	return c
}

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics задаёт метрики публикации и backlog.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithDeadLetters задаёт получателя событий, которые не удалось доставить.
func WithDeadLetters(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.deadLetters = publisher }
}

// Worker доставляет события заказов из outbox подписчикам: live-ленте
// администратора и, если включено, в Kafka.
type Worker struct {
	repo        domain.OutboxRepository
	publisher   domain.OutboxPublisher
	deadLetters domain.OutboxPublisher
	cfg         Config
	logger      *log.Entry
	metrics     *metrics.OutboxMetrics
	now         func() time.Time

	// lagging: предупреждение об отставании уже выдано.
	lagging bool
}

// NewWorker создаёт воркер доставки событий заказов.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, cfg Config, options ...Option) *Worker {
	w := &Worker{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		logger:    log.WithField("component", "outbox-worker"),
		now:       time.Now,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce забирает батч недоставленных событий в порядке записи и
// доставляет каждое. Возвращает число доставленных событий.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	w.observeBacklog(ctx)

	events, err := w.repo.PullPending(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending order events")
		return 0
	}

	delivered := 0
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		if w.deliver(ctx, event) {
			delivered++
		}
	}

	if len(events) > 0 {
		w.observeBacklog(ctx)
	}
	return delivered
}

// deliver публикует событие с повторами. Событие, которое так и не ушло,
// отправляется в dead letter и помечается failed, чтобы не блокировать очередь.
func (w *Worker) deliver(ctx context.Context, event domain.OutboxMessage) bool {
	entry := w.logger.WithFields(orderEventFields(event))

	err := w.publish(ctx, event)
	if err == nil {
		if markErr := w.repo.MarkSent(ctx, event.ID); markErr != nil {
			entry.WithError(markErr).Warn("order event delivered but not marked as sent")
			return false
		}
		return true
	}
	if ctx.Err() != nil {
		return false
	}

	entry.WithError(err).Error("order event delivery failed")
	w.metrics.RecordPublish("failed")

	if dlqErr := w.sendDeadLetter(event, err); dlqErr != nil {
		entry.WithError(dlqErr).Warn("failed to publish order event to dead letter topic")
		w.metrics.RecordPublish("dlq_failed")
	}
	if markErr := w.repo.MarkFailed(ctx, event.ID); markErr != nil {
		entry.WithError(markErr).Warn("failed to mark order event as failed")
	}
	return false
}

func (w *Worker) publish(ctx context.Context, event domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		if lastErr = w.publisher.Publish(event); lastErr == nil {
			w.metrics.RecordPublish("sent")
			return nil
		}
		w.metrics.RecordPublish("retry_error")

		if attempt == w.cfg.MaxAttempts {
			break
		}
		if delay := w.retryDelay(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", domain.ErrOutboxPublish, w.cfg.MaxAttempts, lastErr)
}

// retryDelay: пауза после attempt-й неудачной попытки.
func (w *Worker) retryDelay(attempt int) time.Duration {
	delay := w.cfg.RetryBaseDelay
	for i := 1; i < attempt && delay > 0; i++ {
		if delay >= w.cfg.MaxRetryDelay/2 {
			return w.cfg.MaxRetryDelay
		}
		delay *= 2
	}
	return delay
}

func (w *Worker) sendDeadLetter(event domain.OutboxMessage, publishErr error) error {
	if w.deadLetters == nil {
		return nil
	}

	msg, err := domain.NewDeadLetter(event, publishErr, w.now()).Message(event.CreatedAt)
	if err != nil {
		return err
	}
	return w.deadLetters.Publish(msg)
}

// observeBacklog обновляет метрики backlog и сообщает в лог, когда
// недоставленные события заказов стареют дольше StaleAfter, и когда очередь догнала.
func (w *Worker) observeBacklog(ctx context.Context) {
	if w.metrics == nil && w.cfg.StaleAfter <= 0 {
		return
	}

	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect order event backlog")
		return
	}

	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetBacklog(stats.PendingCount, age)

	if w.cfg.StaleAfter <= 0 {
		return
	}
	stale := age > w.cfg.StaleAfter
	switch {
	case stale && !w.lagging:
		w.logger.WithFields(log.Fields{
			"pending":    stats.PendingCount,
			"oldest_age": age.Round(time.Second).String(),
		}).Warn("order event delivery is lagging")
	case !stale && w.lagging:
		w.logger.WithField("pending", stats.PendingCount).Info("order event delivery caught up")
	}
	w.lagging = stale
}

// orderEventFields: поля лога для события заказа. Payload разбирается, чтобы
// в логе были номер заказа и статус, а не только id сообщения outbox.
func orderEventFields(event domain.OutboxMessage) log.Fields {
	fields := log.Fields{
		"outbox_id":  event.ID,
		"event_type": event.EventType,
		"order_id":   event.AggregateID,
	}
	order, err := domain.DecodeOrderEvent(event)
	if err != nil {
		fields["payload_error"] = err.Error()
		return fields
	}
	fields["order_id"] = order.OrderID
	if order.Status != "" {
		fields["order_status"] = order.Status
	}
	if len(order.Items) > 0 {
		fields["items"] = len(order.Items)
	}
	return fields
}
