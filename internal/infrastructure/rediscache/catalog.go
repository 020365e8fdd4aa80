package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	keyPrefix  = "minishop:product:"
	defaultTTL = 30 * time.Second
)

type cachedProduct struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Stock       int64           `json:"stock"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toCached(p *domain.Product) cachedProduct {
	return cachedProduct{
		ID: p.ID, Name: p.Name, Description: p.Description, UnitPrice: p.UnitPrice,
		Stock: p.Stock, Version: p.Version, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func (c cachedProduct) product() *domain.Product {
	return &domain.Product{
		ID: c.ID, Name: c.Name, Description: c.Description, UnitPrice: c.UnitPrice,
		Stock: c.Stock, Version: c.Version, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

// Catalog is a read-through cache in front of a product lookup. The cached stock is only
// indicative; reservations always go through the ledger against the store.
type Catalog struct {
	client *redis.Client
	next   domain.Finder
	ttl    time.Duration
	log    observability.Logger
}

func NewCatalog(client *redis.Client, next domain.Finder, ttl time.Duration, logger observability.Logger) *Catalog {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Catalog{client: client, next: next, ttl: ttl, log: logger}
}

func key(id string) string { return keyPrefix + id }

// Get serves from redis when possible. Redis failures degrade to the underlying finder.
func (c *Catalog) Get(ctx context.Context, id string) (*domain.Product, error) {
	logger := logctx.FromOr(ctx, c.log)

	raw, err := c.client.Get(ctx, key(id)).Bytes()
	switch {
	case err == nil:
		var cp cachedProduct
		if err := json.Unmarshal(raw, &cp); err == nil {
			return cp.product(), nil
		}
		logger.Warn("catalog_cache_corrupt", observability.F("product_id", id))
	case !errors.Is(err, redis.Nil):
		logger.Warn("catalog_cache_unavailable", observability.F("product_id", id), observability.F("error", err))
	}

	p, err := c.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(toCached(p)); err == nil {
		if err := c.client.Set(ctx, key(id), data, c.ttl).Err(); err != nil {
			logger.Warn("catalog_cache_fill_failed", observability.F("product_id", id), observability.F("error", err))
		}
	}
	return p, nil
}

// Invalidate drops the cached entry after a catalog write.
func (c *Catalog) Invalidate(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("rediscache: invalidate %s: %w", id, err)
	}
	return nil
}
