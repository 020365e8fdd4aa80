package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/product"
	"github.com/shopspring/decimal"
)

const productColumns = `id, name, description, CAST(unit_price AS CHAR), stock, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// ProductRepository implements the catalog repository and the inventory store on MySQL.
type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse unit price %q: %w", price, err)
	}
	p.UnitPrice = d
	return &p, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at, id`)
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
	return out, rows.Err()
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO products (id, name, description, unit_price, stock, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.UnitPrice.String(), p.Stock, p.Version, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *ProductRepository) UpdateDetails(ctx context.Context, p *domain.Product) error {
	if _, err := r.Get(ctx, p.ID); err != nil {
		return err
	}
	// RowsAffected is 0 for an unchanged row in MySQL, so existence is checked first.
	_, err := r.db.ExecContext(ctx, `
UPDATE products SET name = ?, description = ?, unit_price = ?, updated_at = ?
WHERE id = ?`,
		p.Name, p.Description, p.UnitPrice.String(), p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) Load(ctx context.Context, productID string) (dominv.Record, error) {
	rec := dominv.Record{ProductID: productID}
	err := r.db.QueryRowContext(ctx, `SELECT stock, version FROM products WHERE id = ?`, productID).
		Scan(&rec.Stock, &rec.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dominv.Record{}, dominv.ErrNotFound
		}
		return dominv.Record{}, fmt.Errorf("load stock: %w", err)
	}
	return rec, nil
}

func (r *ProductRepository) CompareAndSet(ctx context.Context, productID string, expectedVersion, newStock int64) error {
	// version always moves, so a matched row is always reported as affected.
	res, err := r.db.ExecContext(ctx, `
UPDATE products SET stock = ?, version = version + 1, updated_at = UTC_TIMESTAMP(6)
WHERE id = ? AND version = ?`,
		newStock, productID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = ?)`, productID).Scan(&exists); err != nil {
		return fmt.Errorf("check product: %w", err)
	}
	if !exists {
		return dominv.ErrNotFound
	}
	return dominv.ErrVersionConflict
}
