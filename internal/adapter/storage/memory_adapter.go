package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/allocation-ledger/internal/core/domain"
)

type allocationKey struct {
	productID string
	holderID  string
}

// MemoryAdapter keeps products, allocations and sales in process memory. It is
// used for local runs and tests.
type MemoryAdapter struct {
	mu          sync.RWMutex
	products    map[string]domain.Product
	allocations map[allocationKey]domain.Allocation
	sales       map[string]domain.Sale
	now         func() time.Time
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		products:    make(map[string]domain.Product),
		allocations: make(map[allocationKey]domain.Allocation),
		sales:       make(map[string]domain.Sale),
		now:         time.Now,
	}
}

func (m *MemoryAdapter) GetQuantity(ctx context.Context, productID, holderID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.allocations[allocationKey{productID, holderID}].Quantity, nil
}

func (m *MemoryAdapter) SumForProduct(ctx context.Context, productID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for k, a := range m.allocations {
		if k.productID == productID {
			total += a.Quantity
		}
	}
	return total, nil
}

func (m *MemoryAdapter) ListForHolder(ctx context.Context, holderID string) ([]domain.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Allocation
	for k, a := range m.allocations {
		if k.holderID == holderID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (m *MemoryAdapter) ApplyDelta(ctx context.Context, productID, holderID string, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := allocationKey{productID, holderID}
	now := m.now().UTC()
	a, ok := m.allocations[key]
	if !ok {
		a = domain.Allocation{
			ProductID: productID,
			HolderID:  holderID,
			Active:    true,
			CreatedAt: now,
		}
	}

	if a.Quantity+delta < 0 {
		return a.Quantity, fmt.Errorf("%w: holder %s has %d of %s, change %d",
			domain.ErrInsufficientStock, holderID, a.Quantity, productID, delta)
	}

	a.Quantity += delta
	a.Version++
	a.UpdatedAt = now
	m.allocations[key] = a

	return a.Quantity, nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	return &p, nil
}

func (m *MemoryAdapter) CreateProduct(ctx context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[product.ID]; ok {
		return fmt.Errorf("product %s: %w", product.ID, domain.ErrConflict)
	}
	m.products[product.ID] = product
	return nil
}

func (m *MemoryAdapter) CreateSale(ctx context.Context, sale domain.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sales[sale.ID]; ok {
		return fmt.Errorf("sale %s: %w", sale.ID, domain.ErrConflict)
	}
	sale.Lines = append([]domain.SaleLine(nil), sale.Lines...)
	m.sales[sale.ID] = sale
	return nil
}

func (m *MemoryAdapter) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sales[saleID]
	if !ok {
		return nil, fmt.Errorf("sale %s: %w", saleID, domain.ErrNotFound)
	}
	return &s, nil
}

func (m *MemoryAdapter) ListSalesByHolder(ctx context.Context, holderID string) ([]domain.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Sale
	for _, s := range m.sales {
		if s.HolderID == holderID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
