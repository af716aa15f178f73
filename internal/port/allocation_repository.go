package port

import (
	"context"

	"github.com/rl1809/allocation-ledger/internal/core/domain"
)

// AllocationReader is the read side of the allocation store.
type AllocationReader interface {
	// GetQuantity returns the holder's quantity of a product, 0 when no row exists
	GetQuantity(ctx context.Context, productID, holderID string) (int64, error)

	// SumForProduct returns the total allocated across all holders of a product
	SumForProduct(ctx context.Context, productID string) (int64, error)

	// ListForHolder returns every allocation row of a holder
	ListForHolder(ctx context.Context, holderID string) ([]domain.Allocation, error)
}

type AllocationRepository interface {
	AllocationReader

	// ApplyDelta atomically adds delta to the (product, holder) row and returns the
	// new quantity. Fails with domain.ErrInsufficientStock when the result would be
	// negative. Linearizable per row.
	ApplyDelta(ctx context.Context, productID, holderID string, delta int64) (int64, error)
}
