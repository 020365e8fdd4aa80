package product

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("product: not found")
	ErrAlreadyExists = errors.New("product: already exists")
	ErrNameRequired  = errors.New("product: name must not be blank")
	ErrNegativePrice = errors.New("product: unit price must be zero or greater")
	ErrNegativeStock = errors.New("product: stock must be zero or greater")
)

// Product is a catalog entry carrying the stock counter guarded by Version.
// Stock and Version are only ever changed through the inventory ledger after creation.
type Product struct {
	ID          string
	Name        string
	Description string
	UnitPrice   decimal.Decimal
	Stock       int64
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func New(id, name, description string, unitPrice decimal.Decimal, stock int64, now time.Time) (*Product, error) {
	p := &Product{
		ID:          id,
		Name:        strings.TrimSpace(name),
		Description: description,
		UnitPrice:   unitPrice,
		Stock:       stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate returns every broken rule joined together.
func (p *Product) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ErrNameRequired)
	}
	if p.UnitPrice.IsNegative() {
		errs = append(errs, ErrNegativePrice)
	}
	if p.Stock < 0 {
		errs = append(errs, ErrNegativeStock)
	}
	return errors.Join(errs...)
}

// UpdateDetails replaces the display metadata and price. Stock is left alone.
func (p *Product) UpdateDetails(name, description string, unitPrice decimal.Decimal, now time.Time) error {
	next := *p
	next.Name = strings.TrimSpace(name)
	next.Description = description
	next.UnitPrice = unitPrice
	if err := next.Validate(); err != nil {
		return err
	}
	next.UpdatedAt = now
	*p = next
	return nil
}

// Clone returns a copy safe to hand out of a repository.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
