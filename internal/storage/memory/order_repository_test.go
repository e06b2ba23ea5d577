package memory_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
	"github.com/vladislavdragonenkov/bulk-oms/internal/storage/memory"
)

func seedProduct(t *testing.T, store *memory.Store, name, price string) domain.Product {
	t.Helper()

	p, err := memory.NewProductRepository(store).Create(context.Background(), domain.Product{
		Name:      name,
		UnitPrice: decimal.RequireFromString(price),
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}

func newDraft(lines ...domain.OrderLine) domain.OrderDraft {
	return domain.OrderDraft{
		BuyerName:       "Ana",
		ContactInfo:     "ana@x.com",
		DeliveryAddress: "12 Elm St",
		Lines:           lines,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestOrderRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	carrots := seedProduct(t, store, "Carrots", "2.50")
	beets := seedProduct(t, store, "Beets", "1.10")
	repo := memory.NewOrderRepository(store)

	created, err := repo.Create(ctx, newDraft(
		domain.OrderLine{ProductID: carrots.ID, Quantity: 10},
		domain.OrderLine{ProductID: beets.ID, Quantity: 3},
	))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID != 1 {
		t.Fatalf("expected first order id 1, got %d", created.ID)
	}
	if created.Status != domain.OrderStatusPending {
		t.Fatalf("expected Pending, got %s", created.Status)
	}

	stored, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(stored.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(stored.Items))
	}
	if stored.Items[0].Name != "Carrots" || !stored.Items[0].UnitPrice.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("unexpected first item: %+v", stored.Items[0])
	}
	if stored.Items[0].OrderID != created.ID {
		t.Fatalf("item must reference its order, got %d", stored.Items[0].OrderID)
	}
}

func TestOrderRepository_CreateUnknownProductPersistsNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	carrots := seedProduct(t, store, "Carrots", "2.50")
	repo := memory.NewOrderRepository(store)
	outbox := memory.NewOutboxRepository(store)

	_, err := repo.Create(ctx, newDraft(
		domain.OrderLine{ProductID: carrots.ID, Quantity: 10},
		domain.OrderLine{ProductID: 999, Quantity: 1},
	))
	var missing *domain.MissingProductError
	if !errors.As(err, &missing) || missing.ProductID != 999 {
		t.Fatalf("expected MissingProductError for 999, got %v", err)
	}

	orders, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected no orders after failed create, got %d", len(orders))
	}

	pending, err := outbox.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no outbox events after failed create, got %d", len(pending))
	}
}

func TestOrderRepository_CreateRejectsInvalidQuantity(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	carrots := seedProduct(t, store, "Carrots", "2.50")
	repo := memory.NewOrderRepository(store)

	for _, qty := range []int{0, -5, math.MaxInt32 + 1} {
		_, err := repo.Create(ctx, newDraft(
			domain.OrderLine{ProductID: carrots.ID, Quantity: 1},
			domain.OrderLine{ProductID: carrots.ID, Quantity: qty},
		))
		if !errors.Is(err, domain.ErrItemQtyInvalid) {
			t.Fatalf("quantity %d: expected ErrItemQtyInvalid, got %v", qty, err)
		}
	}

	orders, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected no orders after rejected creates, got %d", len(orders))
	}
	pending, err := memory.NewOutboxRepository(store).PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no outbox events after rejected creates, got %d", len(pending))
	}
}

func TestOrderRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	p := seedProduct(t, store, "Carrots", "2.50")
	repo := memory.NewOrderRepository(store)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		draft := newDraft(domain.OrderLine{ProductID: p.ID, Quantity: i + 1})
		draft.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if _, err := repo.Create(ctx, draft); err != nil {
			t.Fatalf("create %d failed: %v", i, err)
		}
	}
	// Равное время создания: порядок по убыванию ID.
	tie := newDraft(domain.OrderLine{ProductID: p.ID, Quantity: 1})
	tie.CreatedAt = base.Add(2 * time.Minute)
	if _, err := repo.Create(ctx, tie); err != nil {
		t.Fatalf("create tie failed: %v", err)
	}

	orders, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	gotIDs := make([]int64, 0, len(orders))
	for _, o := range orders {
		gotIDs = append(gotIDs, o.ID)
	}
	want := []int64{4, 3, 2, 1}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("expected order ids %v, got %v", want, gotIDs)
		}
	}
}

func TestOrderRepository_PriceResolvedAtReadTime(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	products := memory.NewProductRepository(store)
	p := seedProduct(t, store, "Carrots", "2.50")
	repo := memory.NewOrderRepository(store)

	order, err := repo.Create(ctx, newDraft(domain.OrderLine{ProductID: p.ID, Quantity: 10}))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	p.UnitPrice = decimal.RequireFromString("3.00")
	if _, err := products.Update(ctx, p); err != nil {
		t.Fatalf("update product failed: %v", err)
	}

	stored, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !stored.Items[0].UnitPrice.Equal(decimal.RequireFromString("3")) {
		t.Fatalf("expected current catalog price 3.00, got %s", stored.Items[0].UnitPrice)
	}
}

func TestOrderRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	p := seedProduct(t, store, "Carrots", "2.50")
	repo := memory.NewOrderRepository(store)

	order, err := repo.Create(ctx, newDraft(domain.OrderLine{ProductID: p.ID, Quantity: 10}))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	header, err := repo.UpdateStatus(ctx, order.ID, domain.OrderStatusInProgress)
	if err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	if header.Status != domain.OrderStatusInProgress || header.Items != nil {
		t.Fatalf("unexpected header: %+v", header)
	}
	if !header.CreatedAt.Equal(order.CreatedAt) {
		t.Fatal("createdAt must not change on status update")
	}

	stored, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Status != domain.OrderStatusInProgress || len(stored.Items) != 1 {
		t.Fatalf("unexpected stored order: %+v", stored)
	}

	if _, err := repo.UpdateStatus(ctx, 42, domain.OrderStatusDelivered); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := repo.UpdateStatus(ctx, order.ID, "Shipped"); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestOrderRepository_DeleteCascadesItemsAndReleasesProduct(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	products := memory.NewProductRepository(store)
	p := seedProduct(t, store, "Carrots", "2.50")
	repo := memory.NewOrderRepository(store)

	order, err := repo.Create(ctx, newDraft(domain.OrderLine{ProductID: p.ID, Quantity: 10}))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := products.Delete(ctx, p.ID); !errors.Is(err, domain.ErrProductInUse) {
		t.Fatalf("expected ErrProductInUse while order references product, got %v", err)
	}

	if err := repo.Delete(ctx, order.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := repo.Get(ctx, order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on second delete, got %v", err)
	}

	if err := products.Delete(ctx, p.ID); err != nil {
		t.Fatalf("expected product delete to succeed once items are gone, got %v", err)
	}
}

func TestOrderRepository_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	p := seedProduct(t, store, "Carrots", "2.50")
	repo := memory.NewOrderRepository(store)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Create(ctx, newDraft(domain.OrderLine{ProductID: p.ID, Quantity: 1})); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent create failed: %v", err)
	}

	orders, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != workers {
		t.Fatalf("expected %d orders, got %d", workers, len(orders))
	}
	seen := make(map[int64]bool, workers)
	for _, o := range orders {
		if seen[o.ID] {
			t.Fatalf("duplicate order id %d", o.ID)
		}
		seen[o.ID] = true
		if len(o.Items) != 1 {
			t.Fatalf("order %d has %d items", o.ID, len(o.Items))
		}
	}
}
