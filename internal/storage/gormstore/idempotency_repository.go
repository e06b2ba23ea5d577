package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

type idempotencyRepository struct {
	db *gorm.DB
}

// NewIdempotencyRepository создаёт gorm-реализацию IdempotencyRepository.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{db: store.db}
}

func (r *idempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	record, err := domain.NewIdempotencyRecord(key, requestHash, ttlAt, time.Now())
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	row := idempotencyModel{
		Key:         record.Key,
		RequestHash: record.RequestHash,
		Status:      string(record.Status),
		TTLAt:       record.TTLAt,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
	err = r.db.WithContext(ctx).Create(&row).Error
	switch {
	case err == nil:
		return row.toDomain(), nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		existing, getErr := r.Get(ctx, record.Key)
		if getErr != nil {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		return existing, existing.Conflict(record.RequestHash)
	default:
		return domain.IdempotencyRecord{}, fmt.Errorf("register order placement key: %w", err)
	}
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	var row idempotencyModel
	if err := r.db.WithContext(ctx).Where("key = ?", key).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}

	record := row.toDomain()
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", row.Status, key)
	}
	return record, nil
}

func (r *idempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *idempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// Delete освобождает ключ после сбоя оформления даже при отменённом запросе.
func (r *idempotencyRepository) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := domain.IdempotencyOutcomeContext(ctx)
	defer cancel()

	if err := r.db.WithContext(ctx).Where("key = ?", key).Delete(&idempotencyModel{}).Error; err != nil {
		return fmt.Errorf("delete idempotency record: %w", err)
	}
	return nil
}

func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&idempotencyModel{}).Where("ttl_at <= ?", before.UTC()).Order("ttl_at ASC")
		if limit > 0 {
			query = query.Limit(limit)
		}

		var keys []string
		if err := query.Pluck("key", &keys).Error; err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}

		res := tx.Where("key IN ?", keys).Delete(&idempotencyModel{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}

	return int(deleted), nil
}

// markStatus фиксирует итог только для ключа в processing.
func (r *idempotencyRepository) markStatus(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := domain.IdempotencyOutcomeContext(ctx)
	defer cancel()

	res := r.db.WithContext(ctx).
		Model(&idempotencyModel{}).
		Where("key = ? AND status = ?", key, string(domain.IdempotencyStatusProcessing)).
		Updates(map[string]any{
			"response_body": responseBody,
			"http_status":   httpStatus,
			"status":        string(status),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("store %s outcome for key %s: %w", status, key, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	if _, err := r.Get(ctx, key); err != nil {
		return err
	}
	return domain.ErrIdempotencyKeyNotProcessing
}

func (m idempotencyModel) toDomain() domain.IdempotencyRecord {
	return domain.IdempotencyRecord{
		Key:          m.Key,
		RequestHash:  m.RequestHash,
		ResponseBody: append([]byte(nil), m.ResponseBody...),
		HTTPStatus:   m.HTTPStatus,
		Status:       domain.IdempotencyStatus(m.Status),
		TTLAt:        m.TTLAt.UTC(),
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
