package product

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewValidates(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		pname   string
		price   string
		stock   int64
		wantErr []error
	}{
		{name: "valid", pname: "Pen", price: "10.00", stock: 3},
		{name: "free item", pname: "Sticker", price: "0", stock: 0},
		{name: "blank name", pname: "   ", price: "1", stock: 1, wantErr: []error{ErrNameRequired}},
		{name: "negative price", pname: "Pen", price: "-0.01", stock: 1, wantErr: []error{ErrNegativePrice}},
		{name: "everything wrong", pname: "", price: "-1", stock: -1, wantErr: []error{ErrNameRequired, ErrNegativePrice, ErrNegativeStock}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := New("p-1", tt.pname, "", decimal.RequireFromString(tt.price), tt.stock, now)
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if p.Version != 0 || !p.CreatedAt.Equal(now) {
					t.Fatalf("unexpected product: %+v", p)
				}
				return
			}
			for _, want := range tt.wantErr {
				if !errors.Is(err, want) {
					t.Fatalf("expected %v in %v", want, err)
				}
			}
		})
	}
}

func TestUpdateDetailsKeepsStock(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := New("p-1", "Pen", "blue", decimal.RequireFromString("10"), 3, created)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p.Version = 4

	later := created.Add(time.Hour)
	if err := p.UpdateDetails("Pencil", "grey", decimal.RequireFromString("2.50"), later); err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Name != "Pencil" || p.Stock != 3 || p.Version != 4 || !p.UpdatedAt.Equal(later) {
		t.Fatalf("unexpected product after update: %+v", p)
	}

	if err := p.UpdateDetails("", "", decimal.Zero, later); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
	if p.Name != "Pencil" {
		t.Fatalf("failed update must not modify the product")
	}
}
