package domain

import (
	"errors"
	"fmt"
)

// ValidationError помечает ошибку входных данных: запрос отклоняется целиком,
// ничего не сохраняется, повтор без исправления бессмысленен.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func newValidationError(msg string) *ValidationError {
	return &ValidationError{msg: msg}
}

var (
	// Ошибка отсутствующего имени покупателя.
	ErrBuyerNameRequired = newValidationError("buyerName is required")
	// Ошибка отсутствующих контактных данных.
	ErrContactInfoRequired = newValidationError("contactInfo is required")
	// Ошибка отсутствующего адреса доставки.
	ErrDeliveryAddressRequired = newValidationError("deliveryAddress is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = newValidationError("order must contain at least one item")
	// Ошибка отсутствующего productId в позиции.
	ErrItemProductRequired = newValidationError("item productId is required")
	// Ошибка при некорректном количестве товара (<= 0 или больше MaxInt32).
	ErrItemQtyInvalid = newValidationError("item quantity must be a positive 32-bit integer")
	// ErrUnknownProduct: позиция ссылается на товар, которого нет в каталоге.
	ErrUnknownProduct = newValidationError("item references unknown product")
	// ErrInvalidStatus: статус вне перечисления Pending / In Progress / Delivered.
	ErrInvalidStatus = newValidationError("invalid status value")
	// Ошибка пустого названия товара.
	ErrProductNameRequired = newValidationError("product name is required")
	// Ошибка некорректной цены товара.
	ErrProductPriceInvalid = newValidationError("product unitPrice must be greater than zero and fit NUMERIC(10,2)")
	// ErrInvalidID: идентификатор в пути запроса не является положительным целым.
	ErrInvalidID = newValidationError("id must be a positive integer")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductInUse: товар нельзя удалить, пока на него ссылаются позиции заказов.
	ErrProductInUse = errors.New("product is referenced by order items")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired: пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired: не передан хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound: ключ не найден (или уже удалён по TTL).
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists: запрос с таким ключом уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotProcessing: итог по ключу уже сохранён.
	ErrIdempotencyKeyNotProcessing = errors.New("idempotency key already has an outcome")
	// ErrIdempotencyHashMismatch: ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
)

// MissingProductError сообщает, какая позиция ссылается на отсутствующий товар.
// Репозитории возвращают её при проверке ссылок внутри транзакции создания заказа.
type MissingProductError struct {
	ProductID int64
}

func (e *MissingProductError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// Is позволяет проверять ошибку через errors.Is(err, ErrProductNotFound).
func (e *MissingProductError) Is(target error) bool {
	return target == ErrProductNotFound
}

// IsValidation проверяет, относится ли ошибка к ошибкам валидации.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound проверяет, что ошибка означает отсутствие заказа или товара.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrProductNotFound)
}

// IsIdempotencyConflict проверяет конфликт по ключу идемпотентности.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
