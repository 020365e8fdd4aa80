package postgres

import (
	"context"
	"errors"
	"fmt"

	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/product"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const productColumns = `id, name, description, unit_price::text, stock, version, created_at, updated_at`

// ProductRepository stores the catalog and serves as the version-gated inventory store.
type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := parseMoney(price)
	if err != nil {
		return nil, err
	}
	p.UnitPrice = d
	return &p, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO products (id, name, description, unit_price, stock, version, created_at, updated_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)`,
		p.ID, p.Name, p.Description, p.UnitPrice.String(), p.Stock, p.Version, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *ProductRepository) UpdateDetails(ctx context.Context, p *domain.Product) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE products SET name = $2, description = $3, unit_price = $4::numeric, updated_at = $5
WHERE id = $1`,
		p.ID, p.Name, p.Description, p.UnitPrice.String(), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) Load(ctx context.Context, productID string) (dominv.Record, error) {
	rec := dominv.Record{ProductID: productID}
	err := r.pool.QueryRow(ctx, `SELECT stock, version FROM products WHERE id = $1`, productID).
		Scan(&rec.Stock, &rec.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dominv.Record{}, dominv.ErrNotFound
		}
		return dominv.Record{}, fmt.Errorf("load stock: %w", err)
	}
	return rec, nil
}

func (r *ProductRepository) CompareAndSet(ctx context.Context, productID string, expectedVersion, newStock int64) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE products SET stock = $3, version = version + 1, updated_at = NOW()
WHERE id = $1 AND version = $2`,
		productID, expectedVersion, newStock,
	)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return fmt.Errorf("check product: %w", err)
	}
	if !exists {
		return dominv.ErrNotFound
	}
	return dominv.ErrVersionConflict
}
