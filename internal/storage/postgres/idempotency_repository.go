package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

const idempotencyColumns = `key, request_hash, response_body, http_status, status, ttl_at, created_at, updated_at`

// placementKeyRepository хранит ключи оформления заказов в таблице idempotency_keys.
type placementKeyRepository struct {
	db *sql.DB
}

// NewIdempotencyRepository создаёт PostgreSQL-реестр ключей POST /orders.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &placementKeyRepository{db: store.DB()}
}

// CreateProcessing регистрирует ключ. Для занятого ключа возвращает сохранённую
// запись и причину конфликта.
func (r *placementKeyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	record, err := domain.NewIdempotencyRecord(key, requestHash, ttlAt, time.Now())
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, request_hash, status, ttl_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, record.Key, record.RequestHash, string(record.Status), record.TTLAt, record.CreatedAt)
	switch {
	case err == nil:
		return record, nil
	case isUniqueViolation(err):
		existing, getErr := r.Get(ctx, record.Key)
		if getErr != nil {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		return existing, existing.Conflict(record.RequestHash)
	default:
		return domain.IdempotencyRecord{}, fmt.Errorf("register order placement key: %w", err)
	}
}

func (r *placementKeyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	record, err := scanPlacementKey(r.db.QueryRowContext(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE key = $1`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("get order placement key %s: %w", key, err)
	}
	return record, nil
}

// MarkDone сохраняет подтверждение заказа. Запись идёт на отвязанном от
// запроса контексте с таймаутом, как и MarkFailed и Delete.
func (r *placementKeyRepository) MarkDone(ctx context.Context, key string, confirmation []byte, httpStatus int) error {
	return r.complete(ctx, key, domain.IdempotencyStatusDone, confirmation, httpStatus)
}

func (r *placementKeyRepository) MarkFailed(ctx context.Context, key string, rejection []byte, httpStatus int) error {
	return r.complete(ctx, key, domain.IdempotencyStatusFailed, rejection, httpStatus)
}

// Delete освобождает ключ после серверной ошибки; отсутствие ключа не ошибка.
func (r *placementKeyRepository) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := domain.IdempotencyOutcomeContext(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key); err != nil {
		return fmt.Errorf("release order placement key %s: %w", key, err)
	}
	return nil
}

// DeleteExpired удаляет до limit просроченных ключей, старые первыми.
// limit <= 0 снимает ограничение: LIMIT NULL в PostgreSQL означает все строки.
func (r *placementKeyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}
	if limit < 0 {
		limit = 0
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM idempotency_keys
		WHERE key IN (
			SELECT key
			FROM idempotency_keys
			WHERE ttl_at <= $1
			ORDER BY ttl_at ASC
			LIMIT NULLIF($2, 0)
		)
	`, before.UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired order placement keys: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired order placement keys rows affected: %w", err)
	}
	return int(affected), nil
}

// complete переводит ключ из processing в итоговый статус. Завершённый ключ
// не перезаписывается: UPDATE не затронет строку, и причина уточняется чтением.
func (r *placementKeyRepository) complete(ctx context.Context, key string, status domain.IdempotencyStatus, body []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := domain.IdempotencyOutcomeContext(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET response_body = $1, http_status = $2, status = $3, updated_at = $4
		WHERE key = $5 AND status = $6
	`, body, httpStatus, string(status), time.Now().UTC(), key, string(domain.IdempotencyStatusProcessing))
	if err != nil {
		return fmt.Errorf("store %s outcome for key %s: %w", status, key, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("order placement key rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	if _, err := r.Get(ctx, key); err != nil {
		return err
	}
	return domain.ErrIdempotencyKeyNotProcessing
}

func scanPlacementKey(row *sql.Row) (domain.IdempotencyRecord, error) {
	var (
		record     domain.IdempotencyRecord
		status     string
		httpStatus sql.NullInt64
	)
	if err := row.Scan(
		&record.Key, &record.RequestHash, &record.ResponseBody, &httpStatus,
		&status, &record.TTLAt, &record.CreatedAt, &record.UpdatedAt,
	); err != nil {
		return domain.IdempotencyRecord{}, err
	}

	record.Status = domain.IdempotencyStatus(status)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid status %q", status)
	}
	record.HTTPStatus = int(httpStatus.Int64)
	record.TTLAt = record.TTLAt.UTC()
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

var _ domain.IdempotencyRepository = (*placementKeyRepository)(nil)
