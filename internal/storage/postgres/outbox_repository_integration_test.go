package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

func TestOutboxRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewOutboxRepository(store)
	orders := NewOrderRepository(store)
	p := seedProductForIntegrationTest(t, store, "Carrots", "2.50")

	created, err := orders.Create(ctx, integrationDraft(domain.OrderLine{ProductID: p.ID, Quantity: 3}))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := orders.UpdateStatus(ctx, created.ID, domain.OrderStatusDelivered); err != nil {
		t.Fatalf("update status: %v", err)
	}

	pending, err := repo.PullPending(ctx, 0) // default limit path
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}
	if pending[0].EventType != domain.EventOrderCreated {
		t.Fatalf("expected first event %s, got %s", domain.EventOrderCreated, pending[0].EventType)
	}
	if pending[0].AggregateType != domain.AggregateTypeOrder || pending[0].AggregateID != "1" {
		t.Fatalf("unexpected aggregate for first event: %+v", pending[0])
	}
	if len(pending[0].Payload) == 0 {
		t.Fatal("expected payload to be stored")
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats before marks: %v", err)
	}
	if stats.PendingCount != 2 {
		t.Fatalf("expected pending=2 before marks, got %d", stats.PendingCount)
	}
	if stats.OldestPendingAt.IsZero() {
		t.Fatal("expected oldest pending timestamp")
	}

	if err := repo.MarkSent(ctx, pending[0].ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := repo.MarkFailed(ctx, pending[1].ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkSent(ctx, pending[0].ID); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish for already sent message, got %v", err)
	}
	if err := repo.MarkFailed(ctx, "missing-id"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish for missing message, got %v", err)
	}

	stats, err = repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats after marks: %v", err)
	}
	if stats.PendingCount != 0 || !stats.OldestPendingAt.IsZero() {
		t.Fatalf("expected empty backlog after marks, got %+v", stats)
	}
}
