package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

func integrationDraft(lines ...domain.OrderLine) domain.OrderDraft {
	return domain.OrderDraft{
		BuyerName:       "Ana",
		ContactInfo:     "ana@x.com",
		DeliveryAddress: "12 Elm St",
		Lines:           lines,
		CreatedAt:       time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestOrderRepository_PostgresCreateAndGet(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewOrderRepository(store)

	carrots := seedProductForIntegrationTest(t, store, "Carrots", "2.50")
	beets := seedProductForIntegrationTest(t, store, "Beets", "1.10")

	draft := integrationDraft(
		domain.OrderLine{ProductID: carrots.ID, Quantity: 10},
		domain.OrderLine{ProductID: beets.ID, Quantity: 4},
	)
	created, err := repo.Create(ctx, draft)
	require.NoError(t, err)
	require.Equal(t, int64(1), created.ID)
	require.Equal(t, domain.OrderStatusPending, created.Status)
	require.True(t, created.CreatedAt.Equal(draft.CreatedAt))
	require.Len(t, created.Items, 2)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Ana", got.BuyerName)
	require.Len(t, got.Items, 2)
	require.Equal(t, carrots.ID, got.Items[0].ProductID)
	require.Equal(t, "Carrots", got.Items[0].Name)
	require.True(t, got.Items[0].UnitPrice.Equal(decimal.RequireFromString("2.50")))
	require.Equal(t, 10, got.Items[0].Quantity)

	again, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, got, again)

	_, err = repo.Get(ctx, 404)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderRepository_PostgresCreateRollsBackOnUnknownProduct(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewOrderRepository(store)

	carrots := seedProductForIntegrationTest(t, store, "Carrots", "2.50")

	_, err := repo.Create(ctx, integrationDraft(
		domain.OrderLine{ProductID: carrots.ID, Quantity: 10},
		domain.OrderLine{ProductID: 9999, Quantity: 1},
	))
	var missing *domain.MissingProductError
	require.True(t, errors.As(err, &missing), "expected MissingProductError, got %v", err)
	require.Equal(t, int64(9999), missing.ProductID)

	var orders, items, events int
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders))
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM order_items`).Scan(&items))
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_messages`).Scan(&events))
	require.Zero(t, orders)
	require.Zero(t, items)
	require.Zero(t, events)
}

func TestOrderRepository_PostgresListNewestFirst(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewOrderRepository(store)
	p := seedProductForIntegrationTest(t, store, "Carrots", "2.50")

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		draft := integrationDraft(domain.OrderLine{ProductID: p.ID, Quantity: i + 1})
		draft.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		_, err := repo.Create(ctx, draft)
		require.NoError(t, err)
	}

	orders, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	require.Equal(t, []int64{3, 2, 1}, []int64{orders[0].ID, orders[1].ID, orders[2].ID})
	for _, o := range orders {
		require.Len(t, o.Items, 1)
		require.Equal(t, int(o.ID), o.Items[0].Quantity)
	}
}

func TestOrderRepository_PostgresUpdateStatusAndDelete(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewOrderRepository(store)
	products := NewProductRepository(store)
	p := seedProductForIntegrationTest(t, store, "Carrots", "2.50")

	created, err := repo.Create(ctx, integrationDraft(domain.OrderLine{ProductID: p.ID, Quantity: 10}))
	require.NoError(t, err)

	header, err := repo.UpdateStatus(ctx, created.ID, domain.OrderStatusInProgress)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusInProgress, header.Status)
	require.Nil(t, header.Items)

	_, err = repo.UpdateStatus(ctx, 777, domain.OrderStatusDelivered)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	require.ErrorIs(t, products.Delete(ctx, p.ID), domain.ErrProductInUse)

	require.NoError(t, repo.Delete(ctx, created.ID))
	require.ErrorIs(t, repo.Delete(ctx, created.ID), domain.ErrOrderNotFound)

	var items int
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM order_items`).Scan(&items))
	require.Zero(t, items, "items must cascade with their order")

	require.NoError(t, products.Delete(ctx, p.ID))
}

func TestOrderRepository_PostgresConcurrentStatusUpdatesLastWriterWins(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewOrderRepository(store)
	p := seedProductForIntegrationTest(t, store, "Carrots", "2.50")

	created, err := repo.Create(ctx, integrationDraft(domain.OrderLine{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)

	attempted := []domain.OrderStatus{domain.OrderStatusInProgress, domain.OrderStatusDelivered}
	var wg sync.WaitGroup
	for _, status := range attempted {
		wg.Add(1)
		go func(status domain.OrderStatus) {
			defer wg.Done()
			_, err := repo.UpdateStatus(ctx, created.ID, status)
			assert.NoError(t, err)
		}(status)
	}
	wg.Wait()

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Contains(t, attempted, got.Status)
}
