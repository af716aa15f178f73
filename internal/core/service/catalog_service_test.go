package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/allocation-ledger/internal/core/domain"
)

func TestRegisterProduct(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	p, err := f.catalogSvc.RegisterProduct(ctx, domain.Product{
		Name:              "  Galaxy S24 ",
		PurchasedQuantity: 12,
		UnitCost:          decimal.NewFromInt(500),
		UnitPrice:         decimal.NewFromInt(650),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Galaxy S24", p.Name)
	assert.False(t, p.CreatedAt.IsZero())

	qty, err := f.catalogSvc.PurchasedQuantity(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), qty)

	_, err = f.catalogSvc.RegisterProduct(ctx, *p)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestRegisterProduct_Validation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		p    domain.Product
	}{
		{"no name", domain.Product{PurchasedQuantity: 1}},
		{"zero purchased", domain.Product{Name: "x"}},
		{"negative price", domain.Product{Name: "x", PurchasedQuantity: 1, UnitPrice: decimal.NewFromInt(-1)}},
		{"negative cost", domain.Product{Name: "x", PurchasedQuantity: 1, UnitCost: decimal.NewFromInt(-1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.catalogSvc.RegisterProduct(ctx, tt.p)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestStock(t *testing.T) {
	f := newLedgerFixture(t, product("p1", 10, "5"))
	ctx := context.Background()
	f.store.set("p1", "a", 4)
	f.store.set("p1", "b", 3)

	stock, err := f.catalogSvc.Stock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), stock.Allocated)
	assert.Equal(t, int64(3), stock.Remaining)

	allocated, err := f.catalogSvc.AllocatedTotal(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), allocated)

	_, err = f.catalogSvc.Stock(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.catalogSvc.GetProduct(ctx, "")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestHolderStock_Ordering(t *testing.T) {
	zeta := domain.Product{ID: "p1", Name: "Zeta", PurchasedQuantity: 10}
	alphaB := domain.Product{ID: "p3", Name: "Alpha", PurchasedQuantity: 10}
	alphaA := domain.Product{ID: "p2", Name: "Alpha", PurchasedQuantity: 10}
	f := newLedgerFixture(t, zeta, alphaB, alphaA)
	ctx := context.Background()

	f.store.set("p1", "h", 1)
	f.store.set("p3", "h", 2)
	f.store.set("p2", "h", 3)
	f.store.set("orphan", "h", 4)
	f.store.set("p1", "other", 9)

	rows, err := f.catalogSvc.HolderStock(ctx, "h")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "p2", rows[0].ProductID)
	assert.Equal(t, "p3", rows[1].ProductID)
	assert.Equal(t, "p1", rows[2].ProductID)
	assert.Equal(t, int64(3), rows[0].Quantity)
	assert.Equal(t, "Zeta", rows[2].Product.Name)

	_, err = f.catalogSvc.HolderStock(ctx, "")
	require.ErrorIs(t, err, domain.ErrValidation)
}
