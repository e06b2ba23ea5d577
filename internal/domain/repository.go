package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create атомарно сохраняет заголовок, все позиции и событие order.created.
	// Если хотя бы одна позиция ссылается на отсутствующий товар, не сохраняется ничего
	// и возвращается *MissingProductError.
	Create(ctx context.Context, draft OrderDraft) (Order, error)
	// Get возвращает заказ с позициями по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id int64) (Order, error)
	// List возвращает все заказы, новые первыми.
	List(ctx context.Context) ([]Order, error)
	// UpdateStatus меняет статус одной строкой и возвращает обновлённый заголовок.
	UpdateStatus(ctx context.Context, id int64, status OrderStatus) (Order, error)
	// Delete удаляет заказ; позиции удаляются каскадно.
	Delete(ctx context.Context, id int64) error
}

// ProductRepository описывает хранилище каталога товаров.
type ProductRepository interface {
	// List возвращает товары по возрастанию ID.
	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, product Product) (Product, error)
	// Delete возвращает ErrProductInUse, если на товар ссылаются позиции заказов.
	Delete(ctx context.Context, id int64) error
}

// Pinger проверяет доступность хранилища для health-check.
type Pinger interface {
	Ping(ctx context.Context) error
}
