package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/allocation-ledger/internal/core/domain"
	"github.com/rl1809/allocation-ledger/internal/port"
)

// CatalogService is the read-mostly view of purchased lots. It is the source of
// the distribution ceiling and never writes allocations.
type CatalogService struct {
	catalog     port.CatalogRepository
	allocations port.AllocationReader
	logger      *zap.Logger
	now         func() time.Time
}

func NewCatalogService(catalog port.CatalogRepository, allocations port.AllocationReader, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		catalog:     catalog,
		allocations: allocations,
		logger:      logger.Named("catalog"),
		now:         time.Now,
	}
}

func (s *CatalogService) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, fmt.Errorf("%w: product id is required", domain.ErrValidation)
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}
	return product, nil
}

func (s *CatalogService) PurchasedQuantity(ctx context.Context, productID string) (int64, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	return product.PurchasedQuantity, nil
}

func (s *CatalogService) AllocatedTotal(ctx context.Context, productID string) (int64, error) {
	total, err := s.allocations.SumForProduct(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("sum allocations of %s: %w", productID, err)
	}
	return total, nil
}

// Stock reports purchased, allocated and remaining units. The figures are a
// point-in-time read; the engine re-checks the ceiling under its lock.
func (s *CatalogService) Stock(ctx context.Context, productID string) (*domain.ProductStock, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	allocated, err := s.AllocatedTotal(ctx, productID)
	if err != nil {
		return nil, err
	}

	return &domain.ProductStock{
		Product:   *product,
		Allocated: allocated,
		Remaining: product.PurchasedQuantity - allocated,
	}, nil
}

// RegisterProduct records purchase intake of a lot.
func (s *CatalogService) RegisterProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" {
		return nil, fmt.Errorf("%w: product name is required", domain.ErrValidation)
	}
	if product.PurchasedQuantity <= 0 {
		return nil, fmt.Errorf("%w: purchased quantity must be positive, got %d", domain.ErrValidation, product.PurchasedQuantity)
	}
	if product.UnitCost.IsNegative() || product.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("%w: prices cannot be negative", domain.ErrValidation)
	}

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = s.now().UTC()
	}

	if err := s.catalog.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("create product %s: %w", product.ID, err)
	}

	s.logger.Info("product registered",
		zap.String("product_id", product.ID),
		zap.Int64("purchased_quantity", product.PurchasedQuantity),
	)
	return &product, nil
}

// HolderStock lists a holder's allocations with product details, ordered by
// product name and then product id.
func (s *CatalogService) HolderStock(ctx context.Context, holderID string) ([]domain.HolderAllocation, error) {
	if strings.TrimSpace(holderID) == "" {
		return nil, fmt.Errorf("%w: holder id is required", domain.ErrValidation)
	}

	rows, err := s.allocations.ListForHolder(ctx, holderID)
	if err != nil {
		return nil, fmt.Errorf("list allocations of %s: %w", holderID, err)
	}

	out := make([]domain.HolderAllocation, 0, len(rows))
	for _, row := range rows {
		product, err := s.catalog.GetProduct(ctx, row.ProductID)
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("allocation references unknown product",
				zap.String("product_id", row.ProductID),
				zap.String("holder_id", holderID),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get product %s: %w", row.ProductID, err)
		}
		out = append(out, domain.HolderAllocation{Allocation: row, Product: *product})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Product.Name != out[j].Product.Name {
			return out[i].Product.Name < out[j].Product.Name
		}
		return out[i].ProductID < out[j].ProductID
	})

	return out, nil
}
