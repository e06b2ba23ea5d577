package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
	defaultPullLimit    = 100
)

type outboxRepository struct {
	db *gorm.DB
}

// NewOutboxRepository создаёт gorm-реализацию OutboxRepository.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{db: store.db}
}

// enqueueOutbox пишет событие в транзакции изменения заказа.
func enqueueOutbox(tx *gorm.DB, msg domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := outboxModel{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       msg.Payload,
		Status:        outboxStatusPending,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}
	return nil
}

func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultPullLimit
	}

	var rows []outboxModel
	err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at, id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox messages: %w", err)
	}

	result := make([]domain.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.OutboxMessage{
			ID:            row.ID,
			AggregateType: row.AggregateType,
			AggregateID:   row.AggregateID,
			EventType:     row.EventType,
			Payload:       append([]byte(nil), row.Payload...),
			CreatedAt:     row.CreatedAt.UTC(),
		})
	}
	return result, nil
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	db := r.db.WithContext(ctx)

	var count int64
	if err := db.Model(&outboxModel{}).Where("status = ?", outboxStatusPending).Count(&count).Error; err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats query failed: %w", err)
	}

	stats := domain.OutboxStats{PendingCount: int(count)}
	if count == 0 {
		return stats, nil
	}

	// Самую старую запись берём строкой, а не MIN(): SQLite отдаёт агрегат текстом.
	var oldest outboxModel
	err := db.Where("status = ?", outboxStatusPending).Order("created_at").Take(&oldest).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.OutboxStats{}, fmt.Errorf("outbox oldest pending query failed: %w", err)
	}
	if err == nil {
		stats.OldestPendingAt = oldest.CreatedAt.UTC()
	}

	return stats, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, outboxStatusSent)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, outboxStatusFailed)
}

func (r *outboxRepository) markStatus(ctx context.Context, id, status string) error {
	res := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("id = ? AND status = ?", id, outboxStatusPending).
		Updates(map[string]any{
			"status":        status,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("mark outbox message as %s: %w", status, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrOutboxPublish
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
