package storage_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/allocation-ledger/internal/adapter/lock"
	"github.com/rl1809/allocation-ledger/internal/adapter/storage"
	"github.com/rl1809/allocation-ledger/internal/core/domain"
	"github.com/rl1809/allocation-ledger/internal/core/service"
)

type testEnv struct {
	redis   *redis.Client
	mysql   *sql.DB
	catalog *service.CatalogService
	engine  *service.TransferEngine
	sales   *service.SaleService
	store   *storage.MySQLAdapter
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/ledger?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		t.Skipf("Redis not available: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		rdb.Close()
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		rdb.Close()
		db.Close()
		t.Skipf("MySQL not available: %v", err)
	}
	if err := storage.Migrate(mysqlDSN, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		rdb.Close()
		db.Close()
	})

	store := storage.NewMySQLAdapter(db, 20)
	cache := storage.NewRedisAdapter(rdb)
	catalog := service.NewCatalogService(storage.NewCachedCatalog(store, rdb, time.Minute, nil), store, nil)
	engine := service.NewTransferEngine(store, catalog, lock.NewRedisLocker(rdb, lock.DefaultRedisLockerOptions(), nil), cache, nil, service.EngineConfig{
		OperationTimeout: 30 * time.Second,
	})

	return &testEnv{
		redis:   rdb,
		mysql:   db,
		catalog: catalog,
		engine:  engine,
		sales:   service.NewSaleService(engine, catalog, store, cache, nil),
		store:   store,
	}
}

func (e *testEnv) registerProduct(t *testing.T, purchased int64) string {
	t.Helper()

	p, err := e.catalog.RegisterProduct(context.Background(), domain.Product{
		Name:              "Integration lot",
		PurchasedQuantity: purchased,
		UnitPrice:         decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("register product: %v", err)
	}
	return p.ID
}

func TestIntegration_ConcurrentDistribute(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	productID := env.registerProduct(t, 20)

	var wg sync.WaitGroup
	var successCount, rejectCount int64

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			holder := "it-holder-" + string(rune('a'+i%5))
			_, err := env.engine.Distribute(ctx, productID, holder, 1)
			switch {
			case err == nil:
				atomic.AddInt64(&successCount, 1)
			case errors.Is(err, domain.ErrCapacityExceeded):
				atomic.AddInt64(&rejectCount, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successCount != 20 {
		t.Errorf("expected 20 successful distributions, got %d", successCount)
	}
	if rejectCount != 30 {
		t.Errorf("expected 30 rejections, got %d", rejectCount)
	}

	total, err := env.store.SumForProduct(ctx, productID)
	if err != nil || total != 20 {
		t.Errorf("expected allocated total 20, got %d, %v", total, err)
	}
}

func TestIntegration_SaleFlow(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	productID := env.registerProduct(t, 10)
	holder := "it-" + uuid.NewString()[:8]

	if _, err := env.engine.Distribute(ctx, productID, holder, 5); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	requestID := uuid.NewString()
	sale, err := env.sales.RecordSale(ctx, service.RecordSaleRequest{
		HolderID: holder,
		Lines:    []service.SaleLineRequest{{ProductID: productID, Quantity: 2}},
		Metadata: domain.SaleMetadata{RequestID: requestID},
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if !sale.Total.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected total 20, got %s", sale.Total)
	}

	// Duplicate request is rejected and debits nothing
	_, err = env.sales.RecordSale(ctx, service.RecordSaleRequest{
		HolderID: holder,
		Lines:    []service.SaleLineRequest{{ProductID: productID, Quantity: 2}},
		Metadata: domain.SaleMetadata{RequestID: requestID},
	})
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got %v", err)
	}

	qty, _ := env.engine.Quantity(ctx, productID, holder)
	if qty != 3 {
		t.Errorf("expected 3 left, got %d", qty)
	}

	stored, err := env.sales.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if len(stored.Lines) != 1 || stored.Lines[0].Quantity != 2 {
		t.Errorf("unexpected stored sale %+v", stored)
	}
}
