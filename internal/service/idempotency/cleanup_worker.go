// Package idempotency: фоновая очистка ключей, под которыми сохранены ответы
// POST /orders. Ключ живёт до своего TTL, затем удаляется порциями.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
	"github.com/vladislavdragonenkov/bulk-oms/internal/metrics"
)

// CleanupConfig: расписание и размер порции очистки.
type CleanupConfig struct {
	Interval  time.Duration
	BatchSize int
}

// DefaultCleanupConfig: раз в 10 минут, по 500 ключей за запрос к хранилищу.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{Interval: 10 * time.Minute, BatchSize: 500}
}

func (c CleanupConfig) withDefaults() CleanupConfig {
	def := DefaultCleanupConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	return c
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

// WithLogger задает logger для воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics задает метрики очистки.
func WithMetrics(m *metrics.CleanupMetrics) CleanupOption {
	return func(w *CleanupWorker) { w.metrics = m }
}

// WithClock подменяет источник текущего времени.
func WithClock(clock func() time.Time) CleanupOption {
	return func(w *CleanupWorker) {
		if clock != nil {
			w.now = clock
		}
	}
}

// SweepReport: итог одного прохода очистки.
type SweepReport struct {
	// Before: граница TTL, ключи с ttl_at <= Before удалены.
	Before  time.Time
	Deleted int
	Batches int
}

// CleanupWorker удаляет ключи оформления заказов с истёкшим TTL.
type CleanupWorker struct {
	keys    domain.IdempotencyRepository
	cfg     CleanupConfig
	logger  *log.Entry
	metrics *metrics.CleanupMetrics
	now     func() time.Time
}

// NewCleanupWorker создает воркер очистки ключей POST /orders.
func NewCleanupWorker(keys domain.IdempotencyRepository, cfg CleanupConfig, options ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		keys:   keys,
		cfg:    cfg.withDefaults(),
		logger: log.WithField("component", "idempotency-cleanup-worker"),
		now:    time.Now,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run чистит ключи сразу после старта и затем по расписанию до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.keys == nil {
		w.logger.Warn("idempotency cleanup worker is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	report, err := w.Sweep(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		w.metrics.RecordRun(err, report.Deleted)
		w.logger.WithError(err).WithFields(log.Fields{
			"deleted": report.Deleted,
			"batches": report.Batches,
		}).Warn("order placement keys cleanup failed")
	default:
		w.metrics.RecordRun(nil, report.Deleted)
		if report.Deleted > 0 {
			w.logger.WithFields(log.Fields{
				"deleted":    report.Deleted,
				"batches":    report.Batches,
				"ttl_before": report.Before.Format(time.RFC3339),
			}).Info("expired order placement keys removed")
		}
	}
}

// Sweep удаляет все ключи, истёкшие к текущему моменту. Порция меньше
// BatchSize означает, что просроченных ключей больше нет.
func (w *CleanupWorker) Sweep(ctx context.Context) (SweepReport, error) {
	report := SweepReport{Before: w.now().UTC()}

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		deleted, err := w.keys.DeleteExpired(ctx, report.Before, w.cfg.BatchSize)
		if err != nil {
			return report, err
		}
		report.Batches++
		report.Deleted += deleted
		w.metrics.AddDeleted(deleted)

		if deleted < w.cfg.BatchSize {
			return report, nil
		}
	}
}
