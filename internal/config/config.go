package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const ServiceVersion = "0.1.0"

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageMySQL    = "mysql"
)

type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string
	GRPCAddr    string
	LogLevel    string
	LogFile     string

	StorageDriver string
	DatabaseURL   string
	MySQLDSN      string

	RedisAddr       string
	CatalogCacheTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	OtelEndpoint string

	PaymentBaseURL            string
	PaymentAPIKey             string
	PaymentSecretKey          string
	PaymentSuccessRate        float64
	PaymentTimeout            time.Duration
	PaymentLateResponseWindow time.Duration

	LedgerMaxAttempts int
	LedgerBackoff     time.Duration

	LowStockThreshold int64

	SeedProducts bool
}

// Load reads the process environment.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	var errs []error
	duration := func(key, def string) time.Duration {
		d, err := time.ParseDuration(env(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}

	cfg := &Config{
		ServiceName:      env("SERVICE_NAME", "minishop-checkout"),
		Env:              env("ENV", "dev"),
		HTTPAddr:         env("HTTP_ADDR", ":8080"),
		GRPCAddr:         env("GRPC_ADDR", ":9090"),
		LogLevel:         env("LOG_LEVEL", "info"),
		LogFile:          env("LOG_FILE", ""),
		StorageDriver:    strings.ToLower(env("STORAGE_DRIVER", StorageMemory)),
		DatabaseURL:      env("DATABASE_URL", ""),
		MySQLDSN:         env("MYSQL_DSN", ""),
		RedisAddr:        env("REDIS_ADDR", ""),
		KafkaTopic:       env("KAFKA_TOPIC", "minishop.checkout.events"),
		OtelEndpoint:     env("OTEL_EXPORTER_ENDPOINT", ""),
		PaymentBaseURL:   env("PAYMENT_BASE_URL", ""),
		PaymentAPIKey:    env("PAYMENT_API_KEY", ""),
		PaymentSecretKey: env("PAYMENT_SECRET_KEY", ""),
	}
	cfg.CatalogCacheTTL = duration("CATALOG_CACHE_TTL", "30s")
	cfg.PaymentTimeout = duration("PAYMENT_TIMEOUT", "5s")
	cfg.PaymentLateResponseWindow = duration("PAYMENT_LATE_RESPONSE_WINDOW", "30s")
	cfg.LedgerBackoff = duration("LEDGER_BACKOFF", "2ms")

	for _, b := range strings.Split(env("KAFKA_BROKERS", ""), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}

	rate, err := strconv.ParseFloat(env("PAYMENT_SUCCESS_RATE", "0.7"), 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("PAYMENT_SUCCESS_RATE: %w", err))
	}
	cfg.PaymentSuccessRate = rate

	attempts, err := strconv.Atoi(env("LEDGER_MAX_ATTEMPTS", "8"))
	if err != nil {
		errs = append(errs, fmt.Errorf("LEDGER_MAX_ATTEMPTS: %w", err))
	}
	cfg.LedgerMaxAttempts = attempts

	threshold, err := strconv.ParseInt(env("LOW_STOCK_THRESHOLD", "2"), 10, 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("LOW_STOCK_THRESHOLD: %w", err))
	}
	cfg.LowStockThreshold = threshold

	seed, err := strconv.ParseBool(env("SEED_PRODUCTS", "true"))
	if err != nil {
		errs = append(errs, fmt.Errorf("SEED_PRODUCTS: %w", err))
	}
	cfg.SeedProducts = seed

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORAGE_DRIVER=postgres"))
		}
	case StorageMySQL:
		if c.MySQLDSN == "" {
			errs = append(errs, errors.New("MYSQL_DSN is required when STORAGE_DRIVER=mysql"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be one of memory, postgres, mysql, got %q", c.StorageDriver))
	}
	if c.PaymentSuccessRate < 0 || c.PaymentSuccessRate > 1 {
		errs = append(errs, fmt.Errorf("PAYMENT_SUCCESS_RATE must be within [0,1], got %v", c.PaymentSuccessRate))
	}
	if c.PaymentTimeout <= 0 {
		errs = append(errs, errors.New("PAYMENT_TIMEOUT must be positive"))
	}
	if c.PaymentLateResponseWindow < 0 {
		errs = append(errs, errors.New("PAYMENT_LATE_RESPONSE_WINDOW must not be negative"))
	}
	if c.LedgerMaxAttempts < 1 {
		errs = append(errs, errors.New("LEDGER_MAX_ATTEMPTS must be at least 1"))
	}
	if c.LedgerBackoff < 0 {
		errs = append(errs, errors.New("LEDGER_BACKOFF must not be negative"))
	}
	if c.LowStockThreshold < 0 {
		errs = append(errs, errors.New("LOW_STOCK_THRESHOLD must not be negative"))
	}
	if c.PaymentBaseURL != "" && (c.PaymentAPIKey == "" || c.PaymentSecretKey == "") {
		errs = append(errs, errors.New("PAYMENT_API_KEY and PAYMENT_SECRET_KEY are required with PAYMENT_BASE_URL"))
	}
	return errors.Join(errs...)
}
