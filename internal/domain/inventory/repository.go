package inventory

import (
	"context"
)

// Store persists stock counters behind a version gate.
type Store interface {
	Load(ctx context.Context, productID string) (Record, error)
	// CompareAndSet writes newStock and bumps the version by one, but only if the stored
	// version still equals expectedVersion. Otherwise it returns ErrVersionConflict.
	CompareAndSet(ctx context.Context, productID string, expectedVersion, newStock int64) error
}
