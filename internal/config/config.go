package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMySQL  = "mysql"
	StoreRedis  = "redis"
	StoreMemory = "memory"

	LockLocal = "local"
	LockRedis = "redis"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	MySQL MySQLConfig
	Redis RedisConfig

	StoreBackend string
	LockBackend  string

	Ledger LedgerConfig

	CatalogCacheTTL time.Duration
	RateLimit       string

	LogLevel  string
	LogFormat string
}

type MySQLConfig struct {
	DSN            string
	MigrateOnStart bool
	MaxOpenConns   int
	MaxIdleConns   int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type LedgerConfig struct {
	OperationTimeout time.Duration
	RollbackTimeout  time.Duration
	CASMaxAttempts   int
}

func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	var errs []error

	cfg := Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr: getEnv("GRPC_ADDR", ":50051"),
		MySQL: MySQLConfig{
			DSN:            getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/ledger?parseTime=true"),
			MigrateOnStart: getBool("MIGRATE_ON_START", true, &errs),
			MaxOpenConns:   getInt("MYSQL_MAX_OPEN_CONNS", 50, &errs),
			MaxIdleConns:   getInt("MYSQL_MAX_IDLE_CONNS", 25, &errs),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0, &errs),
			PoolSize: getInt("REDIS_POOL_SIZE", 100, &errs),
		},
		StoreBackend: getEnv("STORE_BACKEND", StoreMySQL),
		LockBackend:  getEnv("LOCK_BACKEND", LockLocal),
		Ledger: LedgerConfig{
			OperationTimeout: getDuration("OPERATION_TIMEOUT", 5*time.Second, &errs),
			RollbackTimeout:  getDuration("ROLLBACK_TIMEOUT", 10*time.Second, &errs),
			CASMaxAttempts:   getInt("CAS_MAX_ATTEMPTS", 5, &errs),
		},
		CatalogCacheTTL: getDuration("CATALOG_CACHE_TTL", 30*time.Minute, &errs),
		RateLimit:       getEnv("RATE_LIMIT", "200-S"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreMySQL, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.LockBackend {
	case LockLocal, LockRedis:
	default:
		return fmt.Errorf("unknown LOCK_BACKEND %q", c.LockBackend)
	}

	if c.Ledger.OperationTimeout <= 0 {
		return errors.New("OPERATION_TIMEOUT must be positive")
	}
	if c.Ledger.RollbackTimeout <= 0 {
		return errors.New("ROLLBACK_TIMEOUT must be positive")
	}
	if c.Ledger.CASMaxAttempts <= 0 {
		return errors.New("CAS_MAX_ATTEMPTS must be positive")
	}
	if c.CatalogCacheTTL < 0 {
		return errors.New("CATALOG_CACHE_TTL must not be negative")
	}
	return nil
}

// UsesRedis reports whether any configured component needs a Redis client.
func (c Config) UsesRedis() bool {
	return c.StoreBackend == StoreRedis || c.StoreBackend == StoreMySQL || c.LockBackend == LockRedis
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool, errs *[]error) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}
