package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/allocation-ledger/internal/core/domain"
	"github.com/rl1809/allocation-ledger/internal/port"
)

type SaleLineRequest struct {
	ProductID string
	Quantity  int64
	// UnitPrice overrides the catalog price when set
	UnitPrice *decimal.Decimal
}

type RecordSaleRequest struct {
	HolderID string
	Lines    []SaleLineRequest
	Metadata domain.SaleMetadata
}

type SaleService struct {
	engine  *TransferEngine
	catalog *CatalogService
	sales   port.SaleRepository
	cache   port.CacheRepository
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// NewSaleService wires the sale recorder. cache may be nil, in which case
// request ids are stored with the sale but not deduplicated.
func NewSaleService(engine *TransferEngine, catalog *CatalogService, sales port.SaleRepository, cache port.CacheRepository, logger *zap.Logger) *SaleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SaleService{
		engine:  engine,
		catalog: catalog,
		sales:   sales,
		cache:   cache,
		logger:  logger.Named("sales"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// RecordSale debits the holder's stock and persists the sale as one unit: either
// both happen or neither does.
func (s *SaleService) RecordSale(ctx context.Context, req RecordSaleRequest) (*domain.Sale, error) {
	if err := requireID("holder id", req.HolderID); err != nil {
		return nil, err
	}
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: a sale needs at least one line", domain.ErrValidation)
	}

	lines := make([]domain.SaleLine, 0, len(req.Lines))
	for i, l := range req.Lines {
		if err := validateQuantity(l.Quantity); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		product, err := s.engine.lookupProduct(ctx, l.ProductID)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}

		price := product.UnitPrice
		if l.UnitPrice != nil {
			if l.UnitPrice.IsNegative() {
				return nil, fmt.Errorf("%w: line %d: unit price cannot be negative", domain.ErrValidation, i+1)
			}
			price = *l.UnitPrice
		}

		lines = append(lines, domain.SaleLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: price,
		})
	}

	claimKey, err := s.claimRequest(ctx, req.HolderID, req.Metadata.RequestID)
	if err != nil {
		return nil, err
	}

	sale := domain.NewSale(s.newID(), req.HolderID, req.Metadata, lines, s.now().UTC())

	err = s.engine.DebitForSaleWith(ctx, req.HolderID, sale.StockLines(), func(ctx context.Context) error {
		return s.persist(ctx, sale)
	})
	if err != nil {
		// a claim is kept when the ledger may be inconsistent so the request is
		// not replayed before reconciliation
		if claimKey != "" && !errors.Is(err, domain.ErrDataIntegrityRisk) {
			if relErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), claimKey); relErr != nil {
				s.logger.Warn("failed to release request claim", zap.String("key", claimKey), zap.Error(relErr))
			}
		}
		return nil, err
	}

	s.logger.Info("sale recorded",
		zap.String("sale_id", sale.ID),
		zap.String("holder_id", sale.HolderID),
		zap.Int("lines", len(sale.Lines)),
		zap.String("total", sale.Total.StringFixed(2)),
	)
	return &sale, nil
}

func (s *SaleService) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	if err := requireID("sale id", saleID); err != nil {
		return nil, err
	}
	return s.sales.GetSale(ctx, saleID)
}

func (s *SaleService) ListSalesByHolder(ctx context.Context, holderID string) ([]domain.Sale, error) {
	if err := requireID("holder id", holderID); err != nil {
		return nil, err
	}
	return s.sales.ListSalesByHolder(ctx, holderID)
}

// persist writes the sale. When the write reports an error but the row is
// readable afterwards, the write is treated as committed so the debit is kept.
func (s *SaleService) persist(ctx context.Context, sale domain.Sale) error {
	err := s.sales.CreateSale(ctx, sale)
	if err == nil {
		return nil
	}

	checkCtx, cancel := s.engine.rollbackContext(ctx)
	defer cancel()
	if _, getErr := s.sales.GetSale(checkCtx, sale.ID); getErr == nil {
		s.logger.Warn("sale write reported an error but the sale exists",
			zap.String("sale_id", sale.ID),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("persist sale %s: %w", sale.ID, err)
}

func (s *SaleService) claimRequest(ctx context.Context, holderID, requestID string) (string, error) {
	if requestID == "" || s.cache == nil {
		return "", nil
	}

	key := fmt.Sprintf("sale:%d:%s:%s", len(holderID), holderID, requestID)
	ok, err := s.cache.SetIdempotency(ctx, key)
	if err != nil {
		return "", fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("%w: request %s", domain.ErrDuplicateRequest, requestID)
	}
	return key, nil
}
