package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	domprod "github.com/Zhima-Mochi/minishop-checkout/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/pkg/clock"
	"github.com/shopspring/decimal"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return "p-" + string(rune('0'+s.n))
}

type fakeCache struct{ invalidated []string }

func (c *fakeCache) Invalidate(_ context.Context, id string) error {
	c.invalidated = append(c.invalidated, id)
	return nil
}

func newService() (*Service, *memory.ProductRepository, *fakeCache, *clock.Manual) {
	repo := memory.NewProductRepository()
	cache := &fakeCache{}
	clk := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewService(repo, cache, &seqIDs{}, clk, nil), repo, cache, clk
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newService()
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateInput{Name: "Pen", UnitPrice: decimal.RequireFromString("10.00"), Stock: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID != "p-1" || p.Version != 0 {
		t.Fatalf("unexpected product %+v", p)
	}

	got, err := svc.Get(ctx, p.ID)
	if err != nil || got.Name != "Pen" {
		t.Fatalf("get: %+v %v", got, err)
	}

	list, err := svc.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %d %v", len(list), err)
	}
}

func TestCreateValidates(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newService()
	_, err := svc.Create(context.Background(), CreateInput{Name: "", UnitPrice: decimal.NewFromInt(-1), Stock: -1})
	for _, want := range []error{domprod.ErrNameRequired, domprod.ErrNegativePrice, domprod.ErrNegativeStock} {
		if !errors.Is(err, want) {
			t.Fatalf("expected %v in %v", want, err)
		}
	}
}

func TestUpdateDetailsLeavesStockAndInvalidates(t *testing.T) {
	t.Parallel()

	svc, repo, cache, clk := newService()
	ctx := context.Background()
	p, _ := svc.Create(ctx, CreateInput{Name: "Pen", UnitPrice: decimal.NewFromInt(10), Stock: 3})
	if err := repo.CompareAndSet(ctx, p.ID, 0, 1); err != nil {
		t.Fatalf("cas: %v", err)
	}

	clk.Advance(time.Minute)
	updated, err := svc.UpdateDetails(ctx, UpdateInput{ID: p.ID, Name: "Marker", UnitPrice: decimal.NewFromInt(12)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Stock != 1 || updated.Version != 1 || updated.Name != "Marker" {
		t.Fatalf("unexpected product %+v", updated)
	}
	stored, _ := repo.Get(ctx, p.ID)
	if stored.Stock != 1 || !stored.UnitPrice.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("unexpected stored product %+v", stored)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != p.ID {
		t.Fatalf("expected invalidation of %s, got %v", p.ID, cache.invalidated)
	}

	if _, err := svc.UpdateDetails(ctx, UpdateInput{ID: "missing", Name: "x"}); !errors.Is(err, domprod.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()

	svc, _, cache, _ := newService()
	ctx := context.Background()
	p, _ := svc.Create(ctx, CreateInput{Name: "Pen", UnitPrice: decimal.NewFromInt(1)})

	if err := svc.Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, p.ID); !errors.Is(err, domprod.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.Delete(ctx, p.ID); !errors.Is(err, domprod.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(cache.invalidated) != 1 {
		t.Fatalf("expected one invalidation, got %v", cache.invalidated)
	}
}
