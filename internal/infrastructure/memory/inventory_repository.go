package memory

import (
	"context"

	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
)

func (r *ProductRepository) Load(ctx context.Context, productID string) (dominv.Record, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[productID]
	if !ok {
		return dominv.Record{}, dominv.ErrNotFound
	}
	return dominv.Record{ProductID: p.ID, Stock: p.Stock, Version: p.Version}, nil
}

func (r *ProductRepository) CompareAndSet(ctx context.Context, productID string, expectedVersion, newStock int64) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok {
		return dominv.ErrNotFound
	}
	if p.Version != expectedVersion {
		return dominv.ErrVersionConflict
	}
	next := p.Clone()
	next.Stock = newStock
	next.Version++
	r.products[productID] = next
	return nil
}
