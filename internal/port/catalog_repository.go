package port

import (
	"context"

	"github.com/rl1809/allocation-ledger/internal/core/domain"
)

type CatalogRepository interface {
	// GetProduct returns domain.ErrNotFound for unknown ids
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	// CreateProduct records a purchased lot, domain.ErrConflict if the id exists
	CreateProduct(ctx context.Context, product domain.Product) error
}
