package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/allocation-ledger/internal/adapter/handler"
	"github.com/rl1809/allocation-ledger/internal/adapter/handler/pb"
	"github.com/rl1809/allocation-ledger/internal/adapter/lock"
	"github.com/rl1809/allocation-ledger/internal/adapter/storage"
	"github.com/rl1809/allocation-ledger/internal/config"
	"github.com/rl1809/allocation-ledger/internal/core/service"
	"github.com/rl1809/allocation-ledger/internal/logging"
	"github.com/rl1809/allocation-ledger/internal/port"
)

const shutdownTimeout = 5 * time.Second

type stores struct {
	allocations port.AllocationRepository
	catalog     port.CatalogRepository
	sales       port.SaleRepository
	cache       port.CacheRepository
	reporter    port.IntegrityReporter
	locker      port.Locker
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.UsesRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer rdb.Close()
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	var db *sql.DB
	if cfg.StoreBackend != config.StoreMemory {
		db = openMySQL(ctx, cfg, logger)
		defer db.Close()
	}

	s := buildStores(cfg, db, rdb, logger)

	catalogService := service.NewCatalogService(s.catalog, s.allocations, logger)
	engine := service.NewTransferEngine(s.allocations, catalogService, s.locker, s.reporter, logger, service.EngineConfig{
		OperationTimeout: cfg.Ledger.OperationTimeout,
		RollbackTimeout:  cfg.Ledger.RollbackTimeout,
	})
	saleService := service.NewSaleService(engine, catalogService, s.sales, s.cache, logger)

	// gRPC
	grpcServer := grpc.NewServer()
	pb.RegisterAllocationLedgerServer(grpcServer, handler.NewGRPCHandler(catalogService, engine, saleService, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	// HTTP
	httpHandler := handler.NewHTTPHandler(catalogService, engine, saleService, logger)
	router, err := handler.NewRouter(httpHandler, logger, cfg.RateLimit)
	if err != nil {
		logger.Fatal("failed to build router", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown incomplete", zap.Error(err))
		}
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", zap.Error(err))
	}
	logger.Info("connections closed")
}

func openMySQL(ctx context.Context, cfg config.Config, logger *zap.Logger) *sql.DB {
	if cfg.MySQL.MigrateOnStart {
		if err := storage.Migrate(cfg.MySQL.DSN, logger); err != nil {
			logger.Fatal("failed to migrate mysql", zap.Error(err))
		}
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logger.Fatal("failed to connect mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping mysql", zap.Error(err))
	}
	logger.Info("connected to mysql")
	return db
}

// buildStores picks the adapters for the configured backends. Products and
// sales live in MySQL unless everything runs in memory; STORE_BACKEND=redis
// moves only the allocation rows to Redis.
func buildStores(cfg config.Config, db *sql.DB, rdb *redis.Client, logger *zap.Logger) stores {
	var s stores

	switch cfg.StoreBackend {
	case config.StoreMemory:
		mem := storage.NewMemoryAdapter()
		s.allocations, s.catalog, s.sales = mem, mem, mem
	default:
		mysqlAdapter := storage.NewMySQLAdapter(db, cfg.Ledger.CASMaxAttempts)
		s.allocations, s.catalog, s.sales = mysqlAdapter, mysqlAdapter, mysqlAdapter
	}

	if rdb != nil {
		redisAdapter := storage.NewRedisAdapter(rdb)
		s.cache = redisAdapter
		s.reporter = redisAdapter

		if cfg.StoreBackend == config.StoreRedis {
			s.allocations = redisAdapter
		}
		if cfg.StoreBackend != config.StoreMemory && cfg.CatalogCacheTTL > 0 {
			s.catalog = storage.NewCachedCatalog(s.catalog, rdb, cfg.CatalogCacheTTL, logger)
		}
	}

	switch cfg.LockBackend {
	case config.LockRedis:
		s.locker = lock.NewRedisLocker(rdb, lock.RedisLockerOptionsFor(cfg.Ledger.OperationTimeout, cfg.Ledger.RollbackTimeout), logger)
	default:
		s.locker = lock.NewLocalLocker()
	}

	_, cached := s.catalog.(*storage.CachedCatalog)
	logger.Info("ledger backends selected",
		zap.String("store", cfg.StoreBackend),
		zap.String("lock", cfg.LockBackend),
		zap.Bool("catalog_cache", cached),
	)
	return s
}
