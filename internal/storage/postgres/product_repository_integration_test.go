package postgres

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

func TestProductRepository_PostgresCRUD(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewProductRepository(store)

	onions := seedProductForIntegrationTest(t, store, "Onions", "0.80")
	carrots := seedProductForIntegrationTest(t, store, "Carrots", "2.50")
	require.Equal(t, int64(1), onions.ID)
	require.Equal(t, int64(2), carrots.ID)
	require.Equal(t, "2.50", carrots.UnitPrice.StringFixed(2))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, onions.ID, list[0].ID)

	carrots.UnitPrice = decimal.RequireFromString("3.15")
	updated, err := repo.Update(ctx, carrots)
	require.NoError(t, err)
	require.True(t, updated.UnitPrice.Equal(decimal.RequireFromString("3.15")))

	_, err = repo.Update(ctx, domain.Product{ID: 99, Name: "Ghost", UnitPrice: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	require.NoError(t, repo.Delete(ctx, onions.ID))
	require.ErrorIs(t, repo.Delete(ctx, onions.ID), domain.ErrProductNotFound)

	_, err = repo.Get(ctx, onions.ID)
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}
