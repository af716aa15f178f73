package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/rl1809/allocation-ledger/internal/core/domain"
	"github.com/rl1809/allocation-ledger/internal/port"
)

const productCacheKeyPrefix = "catalog:product:"

type cachedProduct struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Color             string          `json:"color,omitempty"`
	IMEI              string          `json:"imei,omitempty"`
	Barcode           string          `json:"barcode,omitempty"`
	Description       string          `json:"description,omitempty"`
	Supplier          string          `json:"supplier,omitempty"`
	PurchasedQuantity int64           `json:"purchased_quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	CreatedAt         time.Time       `json:"created_at"`
}

// CachedCatalog is a read-through Redis cache in front of a catalog store.
// Products are immutable after intake, so entries are only ever expired.
// Redis calls go through a circuit breaker; while it is open the cache is
// bypassed.
type CachedCatalog struct {
	next    port.CatalogRepository
	client  *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewCachedCatalog(next port.CatalogRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("catalog_cache")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "catalog-cache",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &CachedCatalog{
		next:    next,
		client:  client,
		ttl:     ttl,
		breaker: breaker,
		logger:  logger,
	}
}

func (c *CachedCatalog) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	if p, ok := c.load(ctx, productID); ok {
		return p, nil
	}

	p, err := c.next.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	c.save(ctx, p)
	return p, nil
}

func (c *CachedCatalog) CreateProduct(ctx context.Context, product domain.Product) error {
	if err := c.next.CreateProduct(ctx, product); err != nil {
		return err
	}
	c.save(ctx, &product)
	return nil
}

func (c *CachedCatalog) load(ctx context.Context, productID string) (*domain.Product, bool) {
	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.client.Get(ctx, productCacheKeyPrefix+productID).Bytes()
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("catalog cache read skipped", zap.String("product_id", productID), zap.Error(err))
		}
		return nil, false
	}

	var cp cachedProduct
	if err := json.Unmarshal(raw.([]byte), &cp); err != nil {
		c.logger.Warn("dropping corrupt catalog cache entry", zap.String("product_id", productID), zap.Error(err))
		return nil, false
	}

	p := domain.Product(cp)
	return &p, true
}

func (c *CachedCatalog) save(ctx context.Context, p *domain.Product) {
	raw, err := json.Marshal(cachedProduct(*p))
	if err != nil {
		return
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, productCacheKeyPrefix+p.ID, raw, c.ttl).Err()
	})
	if err != nil {
		c.logger.Debug("catalog cache write skipped", zap.String("product_id", p.ID), zap.Error(err))
	}
}
