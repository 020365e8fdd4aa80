package inventory

import "time"

// ReservedEvent is emitted after stock was committed out of a product.
type ReservedEvent struct {
	ProductID  string
	Quantity   int64
	Stock      int64
	Version    int64
	OccurredAt time.Time
}

func (ReservedEvent) EventName() string  { return "inventory.reserved" }
func (e ReservedEvent) EventKey() string { return e.ProductID }

// ReleasedEvent is emitted after stock was committed back into a product.
type ReleasedEvent struct {
	ProductID  string
	Quantity   int64
	Stock      int64
	Version    int64
	OccurredAt time.Time
}

func (ReleasedEvent) EventName() string  { return "inventory.released" }
func (e ReleasedEvent) EventKey() string { return e.ProductID }
