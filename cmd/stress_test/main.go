package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/allocation-ledger/internal/adapter/lock"
	"github.com/rl1809/allocation-ledger/internal/adapter/storage"
	"github.com/rl1809/allocation-ledger/internal/core/domain"
	"github.com/rl1809/allocation-ledger/internal/core/service"
	"github.com/rl1809/allocation-ledger/internal/port"
)

const (
	defaultRedisAddr = "localhost:6379"
	productID        = "stress-lot"
	purchased        = 20
	totalRequests    = 50
	holders          = 5
	operationTimeout = 30 * time.Second
	rollbackTimeout  = 10 * time.Second
)

func main() {
	ctx := context.Background()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = defaultRedisAddr
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Clear previous test data
	keys, _ := rdb.Keys(ctx, "alloc:row:*:"+productID+":*").Result()
	keys = append(keys, "alloc:total:"+productID)
	for h := 0; h < holders; h++ {
		keys = append(keys, "alloc:holder:"+holderName(h))
	}
	rdb.Del(ctx, keys...)

	logger := zap.NewNop()

	// Products live in memory, allocation rows and locks in Redis
	catalogStore := storage.NewMemoryAdapter()
	allocations := storage.NewRedisAdapter(rdb)
	catalog := service.NewCatalogService(catalogStore, allocations, logger)
	if _, err := catalog.RegisterProduct(ctx, domain.Product{
		ID:                productID,
		Name:              "Stress lot",
		PurchasedQuantity: purchased,
		UnitPrice:         decimal.NewFromInt(1),
	}); err != nil {
		log.Fatalf("failed to register product: %v", err)
	}

	// every request contends on the same product scope
	locker := lock.NewRedisLocker(rdb, lock.RedisLockerOptionsFor(operationTimeout, rollbackTimeout), logger)
	engine := service.NewTransferEngine(allocations, catalog, locker, allocations, logger, service.EngineConfig{
		OperationTimeout: operationTimeout,
		RollbackTimeout:  rollbackTimeout,
	})

	// Counters
	var successCount atomic.Int32
	var rejectCount atomic.Int32
	var errorCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := engine.Distribute(ctx, productID, holderName(n%holders), 1)
			switch {
			case err == nil:
				successCount.Add(1)
			case isRejection(err):
				rejectCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("request %d failed: %v", n, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	rejected := rejectCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Purchased:        %d\n", purchased)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Distributed:      %d\n", success)
	fmt.Printf("Rejected:         %d\n", rejected)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == purchased && rejected == totalRequests-purchased {
		fmt.Printf("PASS: Exactly %d distributions succeeded, %d rejected\n", purchased, totalRequests-purchased)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d rejected, got %d/%d\n",
			purchased, totalRequests-purchased, success, rejected)
	}

	// Verify the conservation law against the store
	verify(ctx, allocations, int64(success))
}

func verify(ctx context.Context, allocations port.AllocationReader, distributed int64) {
	total, err := allocations.SumForProduct(ctx, productID)
	if err != nil {
		log.Fatalf("failed to read total: %v", err)
	}

	var rows int64
	for h := 0; h < holders; h++ {
		qty, err := allocations.GetQuantity(ctx, productID, holderName(h))
		if err != nil {
			log.Fatalf("failed to read allocation: %v", err)
		}
		rows += qty
	}

	fmt.Printf("Allocated Total:  %d (rows sum %d)\n", total, rows)

	if total == distributed && rows == total && total <= purchased {
		fmt.Println("PASS: Allocated total matches successful distributions")
	} else {
		fmt.Printf("FAIL: total %d, rows %d, distributed %d, purchased %d\n", total, rows, distributed, purchased)
	}
}

func isRejection(err error) bool {
	return errors.Is(err, domain.ErrCapacityExceeded)
}

func holderName(n int) string {
	return fmt.Sprintf("stress-holder-%d", n)
}
