package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	appCatalog "github.com/Zhima-Mochi/minishop-checkout/internal/application/catalog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/config"
	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	domprod "github.com/Zhima-Mochi/minishop-checkout/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/mysql"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/httpgateway"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/sandbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/postgres/migrations"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/rediscache"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// productStore is the catalog table, which also carries the ledger's stock and version.
type productStore interface {
	domprod.Repository
	dominv.Store
}

type storage struct {
	products productStore
	payments dompay.Repository
	close    func()
}

func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := postgres.Open(ctx, cfg.DatabaseURL, 0)
		if err != nil {
			return nil, err
		}
		if err := migrations.Apply(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("storage_ready", zap.String("driver", cfg.StorageDriver))
		return &storage{
			products: postgres.NewProductRepository(pool),
			payments: postgres.NewPaymentRepository(pool),
			close:    pool.Close,
		}, nil
	case config.StorageMySQL:
		db, err := mysql.Open(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		if err := mysql.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("storage_ready", zap.String("driver", cfg.StorageDriver))
		return &storage{
			products: mysql.NewProductRepository(db),
			payments: mysql.NewPaymentRepository(db),
			close:    func() { _ = db.Close() },
		}, nil
	default:
		logger.Info("storage_ready", zap.String("driver", config.StorageMemory))
		return &storage{
			products: memory.NewProductRepository(),
			payments: memory.NewPaymentRepository(),
			close:    func() {},
		}, nil
	}
}

// catalogCache puts redis in front of product lookups when REDIS_ADDR is set.
// An unreachable redis is logged and skipped.
func catalogCache(ctx context.Context, cfg *config.Config, products domprod.Finder, appLogger observability.Logger, logger *zap.Logger) (domprod.Finder, appCatalog.Invalidator, func()) {
	if cfg.RedisAddr == "" {
		return products, nil, func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("catalog_cache_disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = client.Close()
		return products, nil, func() {}
	}
	cache := rediscache.NewCatalog(client, products, cfg.CatalogCacheTTL, appLogger)
	logger.Info("catalog_cache_enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.CatalogCacheTTL))
	return cache, cache, func() { _ = client.Close() }
}

func paymentGateway(cfg *config.Config) (dompay.Gateway, error) {
	if cfg.PaymentBaseURL == "" {
		return sandbox.New(sandbox.Config{
			SuccessRate: cfg.PaymentSuccessRate,
			MinLatency:  20 * time.Millisecond,
			MaxLatency:  200 * time.Millisecond,
		}), nil
	}
	return httpgateway.New(httpgateway.Config{
		BaseURL:   cfg.PaymentBaseURL,
		APIKey:    cfg.PaymentAPIKey,
		SecretKey: cfg.PaymentSecretKey,
		Timeout:   cfg.PaymentTimeout + cfg.PaymentLateResponseWindow,
	}, nil)
}

var demoProducts = []appCatalog.CreateInput{
	{Name: "Binocular", Description: "10x42 roof prism", UnitPrice: decimal.RequireFromString("129.90"), Stock: 10},
	{Name: "Notebook", Description: "A5 dotted, 120 pages", UnitPrice: decimal.RequireFromString("12.50"), Stock: 50},
	{Name: "Fountain pen", Description: "Fine nib", UnitPrice: decimal.RequireFromString("34.00"), Stock: 3},
}

// seedProducts fills an empty catalog with demo products.
func seedProducts(ctx context.Context, products domprod.Repository, catalog *appCatalog.Service) error {
	existing, err := products.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	var errs []error
	for _, in := range demoProducts {
		if _, err := catalog.Create(ctx, in); err != nil {
			errs = append(errs, fmt.Errorf("seed %s: %w", in.Name, err))
		}
	}
	return errors.Join(errs...)
}
