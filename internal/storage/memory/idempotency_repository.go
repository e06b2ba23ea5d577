package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

// placementKeys хранит ключи оформления заказов в памяти процесса.
type placementKeys struct {
	mu     sync.Mutex
	byKey  map[string]domain.IdempotencyRecord
	nowUTC func() time.Time
}

// NewIdempotencyRepository создаёт in-memory реестр ключей POST /orders.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &placementKeys{
		byKey:  make(map[string]domain.IdempotencyRecord),
		nowUTC: func() time.Time { return time.Now().UTC() },
	}
}

func (k *placementKeys) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	record, err := domain.NewIdempotencyRecord(key, requestHash, ttlAt, k.nowUTC())
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.IdempotencyRecord{}, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if existing, ok := k.byKey[record.Key]; ok {
		return copyRecord(existing), existing.Conflict(record.RequestHash)
	}
	k.byKey[record.Key] = record
	return copyRecord(record), nil
}

func (k *placementKeys) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	record, ok := k.byKey[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return copyRecord(record), nil
}

// MarkDone и MarkFailed не смотрят на ctx: итог заказа фиксируется даже после
// отключения клиента.
func (k *placementKeys) MarkDone(_ context.Context, key string, confirmation []byte, httpStatus int) error {
	return k.complete(key, domain.IdempotencyStatusDone, confirmation, httpStatus)
}

func (k *placementKeys) MarkFailed(_ context.Context, key string, rejection []byte, httpStatus int) error {
	return k.complete(key, domain.IdempotencyStatusFailed, rejection, httpStatus)
}

// Delete освобождает ключ после сбоя оформления; отсутствие ключа не ошибка.
func (k *placementKeys) Delete(_ context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	k.mu.Lock()
	delete(k.byKey, key)
	k.mu.Unlock()
	return nil
}

// DeleteExpired удаляет не больше limit просроченных ключей, начиная с самых старых.
func (k *placementKeys) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if before.IsZero() {
		before = k.nowUTC()
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	var expired []domain.IdempotencyRecord
	for _, record := range k.byKey {
		if record.ExpiredAt(before) {
			expired = append(expired, record)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].TTLAt.Before(expired[j].TTLAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, record := range expired {
		delete(k.byKey, record.Key)
	}
	return len(expired), nil
}

func (k *placementKeys) complete(key string, status domain.IdempotencyStatus, body []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	record, ok := k.byKey[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	if err := record.Complete(status, body, httpStatus, k.nowUTC()); err != nil {
		return err
	}
	k.byKey[key] = record
	return nil
}

func copyRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	src.ResponseBody = append([]byte(nil), src.ResponseBody...)
	return src
}

var _ domain.IdempotencyRepository = (*placementKeys)(nil)
