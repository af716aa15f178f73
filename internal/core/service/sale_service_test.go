package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/allocation-ledger/internal/core/domain"
)

func fixedClock(f *ledgerFixture) time.Time {
	at := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	f.saleSvc.now = func() time.Time { return at }
	return at
}

func TestRecordSale_Success(t *testing.T) {
	f := newLedgerFixture(t, product("p1", 10, "19.99"), product("p2", 10, "5.00"))
	at := fixedClock(f)
	f.saleSvc.newID = func() string { return "sale-1" }
	f.store.set("p1", "h", 3)
	f.store.set("p2", "h", 6)

	override := decimal.RequireFromString("4.50")
	sale, err := f.saleSvc.RecordSale(context.Background(), RecordSaleRequest{
		HolderID: "h",
		Lines: []SaleLineRequest{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 4, UnitPrice: &override},
		},
		Metadata: domain.SaleMetadata{CustomerName: "Ana"},
	})
	require.NoError(t, err)

	assert.Equal(t, "sale-1", sale.ID)
	assert.Equal(t, at, sale.CreatedAt)
	assert.True(t, sale.Total.Equal(decimal.RequireFromString("57.98")), "total %s", sale.Total)
	assert.True(t, sale.Lines[0].UnitPrice.Equal(decimal.RequireFromString("19.99")))

	assert.Equal(t, int64(1), f.store.get("p1", "h"))
	assert.Equal(t, int64(2), f.store.get("p2", "h"))

	stored, err := f.saleSvc.GetSale(context.Background(), "sale-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", stored.Metadata.CustomerName)
}

func TestRecordSale_CapturesPriceAtSale(t *testing.T) {
	f := newLedgerFixture(t, product("p1", 10, "10"))
	f.store.set("p1", "h", 5)

	sale, err := f.saleSvc.RecordSale(context.Background(), RecordSaleRequest{
		HolderID: "h",
		Lines:    []SaleLineRequest{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)

	f.catalog.setPrice("p1", decimal.NewFromInt(99))

	stored, err := f.saleSvc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.True(t, stored.Lines[0].UnitPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, stored.Total.Equal(decimal.NewFromInt(10)))
}

func TestRecordSale_Validation(t *testing.T) {
	f := newLedgerFixture(t, product("p1", 10, "10"))
	f.store.set("p1", "h", 5)
	ctx := context.Background()
	negative := decimal.NewFromInt(-1)

	tests := []struct {
		name string
		req  RecordSaleRequest
	}{
		{"no holder", RecordSaleRequest{Lines: []SaleLineRequest{{ProductID: "p1", Quantity: 1}}}},
		{"no lines", RecordSaleRequest{HolderID: "h"}},
		{"zero quantity", RecordSaleRequest{HolderID: "h", Lines: []SaleLineRequest{{ProductID: "p1", Quantity: 0}}}},
		{"unknown product", RecordSaleRequest{HolderID: "h", Lines: []SaleLineRequest{{ProductID: "p9", Quantity: 1}}}},
		{"negative price", RecordSaleRequest{HolderID: "h", Lines: []SaleLineRequest{{ProductID: "p1", Quantity: 1, UnitPrice: &negative}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.saleSvc.RecordSale(ctx, tt.req)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	assert.Equal(t, int64(5), f.store.get("p1", "h"))
	assert.Zero(t, f.sales.count())
}

func TestRecordSale_InsufficientStockPersistsNothing(t *testing.T) {
	f := newLedgerFixture(t, product("p1", 10, "10"), product("p2", 10, "10"))
	f.store.set("p1", "h", 3)
	f.store.set("p2", "h", 2)

	_, err := f.saleSvc.RecordSale(context.Background(), RecordSaleRequest{
		HolderID: "h",
		Lines: []SaleLineRequest{
			{ProductID: "p1", Quantity: 3},
			{ProductID: "p2", Quantity: 5},
		},
		Metadata: domain.SaleMetadata{RequestID: "req-1"},
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	assert.Equal(t, int64(3), f.store.get("p1", "h"))
	assert.Equal(t, int64(2), f.store.get("p2", "h"))
	assert.Zero(t, f.sales.count())
	assert.False(t, f.cache.held("sale:1:h:req-1"), "claim must be released for resubmission")
}

func TestRecordSale_DuplicateRequest(t *testing.T) {
	f := newLedgerFixture(t, product("p1", 10, "10"))
	f.store.set("p1", "h", 5)
	ctx := context.Background()

	req := RecordSaleRequest{
		HolderID: "h",
		Lines:    []SaleLineRequest{{ProductID: "p1", Quantity: 1}},
		Metadata: domain.SaleMetadata{RequestID: "req-1"},
	}

	_, err := f.saleSvc.RecordSale(ctx, req)
	require.NoError(t, err)

	_, err = f.saleSvc.RecordSale(ctx, req)
	require.ErrorIs(t, err, domain.ErrDuplicateRequest)

	assert.Equal(t, int64(4), f.store.get("p1", "h"))
	assert.Equal(t, 1, f.sales.count())

	// same request id from another holder is a different request
	f.store.set("p1", "other", 1)
	req.HolderID = "other"
	_, err = f.saleSvc.RecordSale(ctx, req)
	require.NoError(t, err)
}

func TestRecordSale_PersistFailureRestoresStock(t *testing.T) {
	f := newLedgerFixture(t, product("p1", 10, "10"), product("p2", 10, "10"))
	f.store.set("p1", "h", 3)
	f.store.set("p2", "h", 3)
	f.sales.createErr = errors.New("disk full")

	_, err := f.saleSvc.RecordSale(context.Background(), RecordSaleRequest{
		HolderID: "h",
		Lines: []SaleLineRequest{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "p2", Quantity: 2},
		},
		Metadata: domain.SaleMetadata{RequestID: "req-1"},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrDataIntegrityRisk)

	assert.Equal(t, int64(3), f.store.get("p1", "h"))
	assert.Equal(t, int64(3), f.store.get("p2", "h"))
	assert.Zero(t, f.sales.count())
	assert.False(t, f.cache.held("sale:1:h:req-1"))
}

func TestRecordSale_AmbiguousCommitKeepsSale(t *testing.T) {
	f := newLedgerFixture(t, product("p1", 10, "10"))
	f.store.set("p1", "h", 3)
	f.sales.createErr = errors.New("connection reset after commit")
	f.sales.storeAnyway = true

	sale, err := f.saleSvc.RecordSale(context.Background(), RecordSaleRequest{
		HolderID: "h",
		Lines:    []SaleLineRequest{{ProductID: "p1", Quantity: 2}},
	})
	require.NoError(t, err)
	require.NotNil(t, sale)

	assert.Equal(t, int64(1), f.store.get("p1", "h"))
	assert.Equal(t, 1, f.sales.count())
}

func TestRecordSale_IntegrityRiskKeepsClaim(t *testing.T) {
	f := newLedgerFixture(t, product("p1", 10, "10"))
	f.store.set("p1", "h", 3)
	f.sales.createErr = errors.New("disk full")
	f.store.setFail(func(productID, holderID string, delta int64) error {
		if delta > 0 {
			return errStoreDown
		}
		return nil
	})

	_, err := f.saleSvc.RecordSale(context.Background(), RecordSaleRequest{
		HolderID: "h",
		Lines:    []SaleLineRequest{{ProductID: "p1", Quantity: 2}},
		Metadata: domain.SaleMetadata{RequestID: "req-7"},
	})
	require.ErrorIs(t, err, domain.ErrDataIntegrityRisk)
	assert.True(t, f.cache.held("sale:1:h:req-7"))
	assert.Equal(t, 1, f.reporter.count())
}

func TestListSalesByHolder(t *testing.T) {
	f := newLedgerFixture(t, product("p1", 10, "10"))
	f.store.set("p1", "h", 3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.saleSvc.RecordSale(ctx, RecordSaleRequest{
			HolderID: "h",
			Lines:    []SaleLineRequest{{ProductID: "p1", Quantity: 1}},
		})
		require.NoError(t, err)
	}

	sales, err := f.saleSvc.ListSalesByHolder(ctx, "h")
	require.NoError(t, err)
	assert.Len(t, sales, 2)

	_, err = f.saleSvc.ListSalesByHolder(ctx, "")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.saleSvc.GetSale(ctx, "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordSale_TimedOutDebitLeavesStockIntact(t *testing.T) {
	f := newLedgerFixture(t, product("p1", 10, "10"), product("p2", 10, "10"))
	f.store.set("p1", "h", 3)
	f.store.set("p2", "h", 5)
	f.store.setFailAfter(func(productID, holderID string, delta int64) error {
		if productID == "p2" && delta < 0 {
			return context.DeadlineExceeded
		}
		return nil
	})

	_, err := f.saleSvc.RecordSale(context.Background(), RecordSaleRequest{
		HolderID: "h",
		Lines: []SaleLineRequest{
			{ProductID: "p1", Quantity: 3},
			{ProductID: "p2", Quantity: 5},
		},
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Zero(t, f.sales.count())
	assert.Equal(t, int64(3), f.store.get("p1", "h"))
	assert.Equal(t, int64(5), f.store.get("p2", "h"))
	assert.Zero(t, f.reporter.count())
}

func TestRecordSale_RequestKeysDoNotAliasAcrossHolders(t *testing.T) {
	f := newLedgerFixture(t, product("p1", 10, "10"))
	f.store.set("p1", "a:b", 1)
	f.store.set("p1", "a", 1)
	ctx := context.Background()

	_, err := f.saleSvc.RecordSale(ctx, RecordSaleRequest{
		HolderID: "a:b",
		Lines:    []SaleLineRequest{{ProductID: "p1", Quantity: 1}},
		Metadata: domain.SaleMetadata{RequestID: "c"},
	})
	require.NoError(t, err)

	_, err = f.saleSvc.RecordSale(ctx, RecordSaleRequest{
		HolderID: "a",
		Lines:    []SaleLineRequest{{ProductID: "p1", Quantity: 1}},
		Metadata: domain.SaleMetadata{RequestID: "b:c"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, f.sales.count())
}
