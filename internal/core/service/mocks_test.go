package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rl1809/allocation-ledger/internal/adapter/lock"
	"github.com/rl1809/allocation-ledger/internal/core/domain"
)

// Mock AllocationRepository
type mockAllocationStore struct {
	mu   sync.Mutex
	rows map[[2]string]int64
	// fail is consulted before every ApplyDelta; a non-nil error aborts it
	fail func(productID, holderID string, delta int64) error
	// failAfter runs after a successful ApplyDelta; its error is returned with
	// the write already applied
	failAfter func(productID, holderID string, delta int64) error
	readErr   error
}

func newMockAllocationStore() *mockAllocationStore {
	return &mockAllocationStore{rows: make(map[[2]string]int64)}
}

func (m *mockAllocationStore) set(productID, holderID string, qty int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[[2]string{productID, holderID}] = qty
}

func (m *mockAllocationStore) get(productID, holderID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[[2]string{productID, holderID}]
}

func (m *mockAllocationStore) setFail(fn func(productID, holderID string, delta int64) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fn
}

func (m *mockAllocationStore) setFailAfter(fn func(productID, holderID string, delta int64) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = fn
}

func (m *mockAllocationStore) GetQuantity(ctx context.Context, productID, holderID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.readErr != nil {
		return 0, m.readErr
	}
	return m.rows[[2]string{productID, holderID}], nil
}

func (m *mockAllocationStore) SumForProduct(ctx context.Context, productID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total int64
	for k, q := range m.rows {
		if k[0] == productID {
			total += q
		}
	}
	return total, nil
}

func (m *mockAllocationStore) ListForHolder(ctx context.Context, holderID string) ([]domain.Allocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Allocation
	for k, q := range m.rows {
		if k[1] == holderID {
			out = append(out, domain.Allocation{ProductID: k[0], HolderID: k[1], Quantity: q, Active: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (m *mockAllocationStore) ApplyDelta(ctx context.Context, productID, holderID string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := [2]string{productID, holderID}
	if m.fail != nil {
		if err := m.fail(productID, holderID, delta); err != nil {
			return m.rows[key], err
		}
	}

	if m.rows[key]+delta < 0 {
		return m.rows[key], fmt.Errorf("%w: %s/%s", domain.ErrInsufficientStock, productID, holderID)
	}
	m.rows[key] += delta
	if m.failAfter != nil {
		if err := m.failAfter(productID, holderID, delta); err != nil {
			return 0, err
		}
	}
	return m.rows[key], nil
}

// Mock CatalogRepository
type mockCatalog struct {
	mu       sync.Mutex
	products map[string]domain.Product
}

func newMockCatalog(products ...domain.Product) *mockCatalog {
	c := &mockCatalog{products: make(map[string]domain.Product)}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (m *mockCatalog) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	return &p, nil
}

func (m *mockCatalog) CreateProduct(ctx context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[product.ID]; ok {
		return fmt.Errorf("product %s: %w", product.ID, domain.ErrConflict)
	}
	m.products[product.ID] = product
	return nil
}

func (m *mockCatalog) setPrice(productID string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[productID]
	p.UnitPrice = price
	m.products[productID] = p
}

// Mock IntegrityReporter
type mockReporter struct {
	mu        sync.Mutex
	incidents []domain.IntegrityIncident
}

func (m *mockReporter) ReportIntegrityRisk(ctx context.Context, incident domain.IntegrityIncident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents = append(m.incidents, incident)
	return nil
}

func (m *mockReporter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.incidents)
}

// Mock SaleRepository
type mockSaleRepo struct {
	mu    sync.Mutex
	sales map[string]domain.Sale
	// createErr is returned by CreateSale; storeAnyway keeps the row regardless
	createErr   error
	storeAnyway bool
}

func newMockSaleRepo() *mockSaleRepo {
	return &mockSaleRepo{sales: make(map[string]domain.Sale)}
}

func (m *mockSaleRepo) CreateSale(ctx context.Context, sale domain.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil && !m.storeAnyway {
		return m.createErr
	}
	m.sales[sale.ID] = sale
	return m.createErr
}

func (m *mockSaleRepo) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sales[saleID]
	if !ok {
		return nil, fmt.Errorf("sale %s: %w", saleID, domain.ErrNotFound)
	}
	return &s, nil
}

func (m *mockSaleRepo) ListSalesByHolder(ctx context.Context, holderID string) ([]domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Sale
	for _, s := range m.sales {
		if s.HolderID == holderID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSaleRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sales)
}

// Mock CacheRepository
type mockCacheRepo struct {
	mu             sync.Mutex
	idempotencySet map[string]bool
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{idempotencySet: make(map[string]bool)}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotencySet, key)
	return nil
}

func (m *mockCacheRepo) held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idempotencySet[key]
}

type ledgerFixture struct {
	store    *mockAllocationStore
	catalog  *mockCatalog
	reporter *mockReporter
	sales    *mockSaleRepo
	cache    *mockCacheRepo

	catalogSvc *CatalogService
	engine     *TransferEngine
	saleSvc    *SaleService
}

func newLedgerFixture(t *testing.T, products ...domain.Product) *ledgerFixture {
	t.Helper()

	f := &ledgerFixture{
		store:    newMockAllocationStore(),
		catalog:  newMockCatalog(products...),
		reporter: &mockReporter{},
		sales:    newMockSaleRepo(),
		cache:    newMockCacheRepo(),
	}
	f.catalogSvc = NewCatalogService(f.catalog, f.store, nil)
	f.engine = NewTransferEngine(f.store, f.catalogSvc, lock.NewLocalLocker(), f.reporter, nil, EngineConfig{})
	f.saleSvc = NewSaleService(f.engine, f.catalogSvc, f.sales, f.cache, nil)
	return f
}

func product(id string, purchased int64, price string) domain.Product {
	return domain.Product{
		ID:                id,
		Name:              "Product " + id,
		PurchasedQuantity: purchased,
		UnitPrice:         decimal.RequireFromString(price),
	}
}
