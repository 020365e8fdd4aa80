package product

import "context"

// Finder is the read-only lookup used while placing orders.
type Finder interface {
	Get(ctx context.Context, id string) (*Product, error)
}

type Repository interface {
	Finder
	List(ctx context.Context) ([]*Product, error)
	Create(ctx context.Context, p *Product) error
	// UpdateDetails persists name, description and unit price. Stock and version are not written.
	UpdateDetails(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}
