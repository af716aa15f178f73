package port

import (
	"context"

	"github.com/rl1809/allocation-ledger/internal/core/domain"
)

type SaleRepository interface {
	// CreateSale persists a sale with its lines in one transaction
	CreateSale(ctx context.Context, sale domain.Sale) error

	// GetSale returns domain.ErrNotFound for unknown ids
	GetSale(ctx context.Context, saleID string) (*domain.Sale, error)

	// ListSalesByHolder returns a holder's sales, newest first
	ListSalesByHolder(ctx context.Context, holderID string) ([]domain.Sale, error)
}
