package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalLockOrder(t *testing.T) {
	keys := []LockKey{
		RowKey("p2", "h1"),
		RowKey("p1", "h9"),
		ProductScope("p2", true),
		RowKey("p1", "h1"),
		ProductScope("p1", true),
		RowKey("p1", "h1"),
		ProductScope("p1", false),
	}

	got := CanonicalLockOrder(keys)
	require.Len(t, got, 5)

	names := make([]string, len(got))
	for i, k := range got {
		names[i] = k.Name()
	}
	assert.Equal(t, []string{"product:2:p1", "row:2:p1:h1", "row:2:p1:h9", "product:2:p2", "row:2:p2:h1"}, names)

	assert.False(t, got[0].Shared, "exclusive request for p1 scope wins")
	assert.True(t, got[3].Shared)
	assert.False(t, got[1].Shared)
}

func TestLockKeyName_NoAliasing(t *testing.T) {
	assert.NotEqual(t, ProductScope("a/b", false).Name(), RowKey("a", "b").Name())
	assert.NotEqual(t, ProductScope("a:b", false).Name(), RowKey("a", "b").Name())
	assert.NotEqual(t, RowKey("a:b", "c").Name(), RowKey("a", "b:c").Name())

	got := CanonicalLockOrder([]LockKey{ProductScope("a/b", false), RowKey("a", "b")})
	assert.Len(t, got, 2)
}

func TestCanonicalLockOrder_Stable(t *testing.T) {
	a := CanonicalLockOrder([]LockKey{RowKey("p1", "b"), RowKey("p1", "a")})
	b := CanonicalLockOrder([]LockKey{RowKey("p1", "a"), RowKey("p1", "b")})
	assert.Equal(t, a, b)
}

func TestNewSale(t *testing.T) {
	at := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	sale := NewSale("s1", "h1", SaleMetadata{CustomerName: "Ana"}, []SaleLine{
		{ProductID: "p1", Quantity: 3, UnitPrice: decimal.RequireFromString("1.10")},
		{ProductID: "p2", Quantity: 2, UnitPrice: decimal.RequireFromString("0.45")},
	}, at)

	assert.True(t, sale.Total.Equal(decimal.RequireFromString("4.20")), "total %s", sale.Total)
	assert.Equal(t, at, sale.CreatedAt)
	assert.Equal(t, []StockLine{{ProductID: "p1", Quantity: 3}, {ProductID: "p2", Quantity: 2}}, sale.StockLines())

	empty := NewSale("s2", "h1", SaleMetadata{}, nil, at)
	assert.True(t, empty.Total.IsZero())
}

func TestTransferFromPool(t *testing.T) {
	assert.True(t, Transfer{Kind: TransferDistribute, DestinationHolderID: "h"}.FromPool())
	assert.False(t, Transfer{Kind: TransferRedistribute, SourceHolderID: "a", DestinationHolderID: "b"}.FromPool())
}
