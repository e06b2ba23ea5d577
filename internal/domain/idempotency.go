package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	// IdempotencyOutcomeTimeout ограничивает запись итога запроса под ключом.
	IdempotencyOutcomeTimeout = 5 * time.Second
	// DefaultIdempotencyTTL: срок жизни ключа, если вызывающий его не задал.
	DefaultIdempotencyTTL = 24 * time.Hour
)

// IdempotencyStatus: стадия обработки POST /orders под Idempotency-Key.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone: заказ оформлен, подтверждение сохранено для повторов.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed: запрос отклонён с 4xx; повтор получит тот же ответ.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord: сохранённый результат оформления заказа под ключом клиента.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// Completed сообщает, что обработка завершена и ответ больше не изменится.
func (s IdempotencyStatus) Completed() bool {
	return s == IdempotencyStatusDone || s == IdempotencyStatusFailed
}

// Replayable: запись завершена и содержит ответ, который можно отдать повторно.
func (r IdempotencyRecord) Replayable() bool {
	return r.Status.Completed() && r.HTTPStatus != 0 && len(r.ResponseBody) > 0
}

// ExpiredAt сообщает, что срок жизни ключа истёк к моменту at.
func (r IdempotencyRecord) ExpiredAt(at time.Time) bool {
	return !r.TTLAt.After(at)
}

// IdempotencyOutcomeContext возвращает контекст для записи итога оформления
// заказа. Он не отменяется вместе с запросом клиента: заказ уже создан или
// отклонён, и ключ не должен остаться в processing до истечения TTL.
func IdempotencyOutcomeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), IdempotencyOutcomeTimeout)
}

// NewIdempotencyRecord готовит запись processing для нового ключа.
func NewIdempotencyRecord(key, requestHash string, ttlAt, now time.Time) (IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	if key == "" {
		return IdempotencyRecord{}, ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return IdempotencyRecord{}, ErrIdempotencyRequestHashRequired
	}

	now = now.UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(DefaultIdempotencyTTL)
	}
	return IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      IdempotencyStatusProcessing,
		TTLAt:       ttlAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Conflict объясняет, почему повторная регистрация ключа невозможна.
func (r IdempotencyRecord) Conflict(requestHash string) error {
	if r.RequestHash != strings.TrimSpace(requestHash) {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyAlreadyExists
}

// Complete переводит запись из processing в done или failed.
// Итог фиксируется один раз: завершённую запись повторно не перезаписать.
func (r *IdempotencyRecord) Complete(status IdempotencyStatus, body []byte, httpStatus int, at time.Time) error {
	if !status.Completed() {
		return fmt.Errorf("idempotency key %s: %q is not a final status", r.Key, status)
	}
	if r.Status != IdempotencyStatusProcessing {
		return ErrIdempotencyKeyNotProcessing
	}
	r.Status = status
	r.ResponseBody = append([]byte(nil), body...)
	r.HTTPStatus = httpStatus
	r.UpdatedAt = at.UTC()
	return nil
}
