package postgres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	domprod "github.com/Zhima-Mochi/minishop-checkout/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-checkout/internal/testutil"
	"github.com/shopspring/decimal"
)

func seedProduct(t *testing.T, r *ProductRepository, id string, stock int64) *domprod.Product {
	t.Helper()
	p, err := domprod.New(id, "Notebook", "A5 dotted", decimal.RequireFromString("12.35"), stock, time.Now().UTC().Truncate(time.Microsecond))
	if err != nil {
		t.Fatalf("new product: %v", err)
	}
	if err := r.Create(context.Background(), p); err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func TestProductRepositoryCRUD(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	r := NewProductRepository(pool)

	p := seedProduct(t, r, "p-1", 3)
	if err := r.Create(ctx, p); !errors.Is(err, domprod.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := r.Get(ctx, "p-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.UnitPrice.Equal(decimal.RequireFromString("12.35")) || got.Stock != 3 || got.Version != 0 {
		t.Fatalf("unexpected product: %+v", got)
	}

	if err := got.UpdateDetails("Notebook XL", "A4", decimal.RequireFromString("15.00"), time.Now().UTC()); err != nil {
		t.Fatalf("update details: %v", err)
	}
	if err := r.UpdateDetails(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	updated, _ := r.Get(ctx, "p-1")
	if updated.Name != "Notebook XL" || updated.Stock != 3 || updated.Version != 0 {
		t.Fatalf("update must only touch details: %+v", updated)
	}

	list, err := r.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %d, %v", len(list), err)
	}

	if err := r.Delete(ctx, "p-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.Get(ctx, "p-1"); !errors.Is(err, domprod.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := r.Delete(ctx, "p-1"); !errors.Is(err, domprod.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestCompareAndSet(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	r := NewProductRepository(pool)
	seedProduct(t, r, "p-1", 3)

	rec, err := r.Load(ctx, "p-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := r.CompareAndSet(ctx, "p-1", rec.Version, 2); err != nil {
		t.Fatalf("cas: %v", err)
	}
	if err := r.CompareAndSet(ctx, "p-1", rec.Version, 1); !errors.Is(err, dominv.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if err := r.CompareAndSet(ctx, "missing", 0, 1); !errors.Is(err, dominv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.Load(ctx, "missing"); !errors.Is(err, dominv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on load, got %v", err)
	}

	after, _ := r.Load(ctx, "p-1")
	if after.Stock != 2 || after.Version != rec.Version+1 {
		t.Fatalf("unexpected record: %+v", after)
	}
}

func TestCompareAndSetConcurrentSingleWinner(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	r := NewProductRepository(pool)
	seedProduct(t, r, "p-1", 10)

	rec, _ := r.Load(ctx, "p-1")
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.CompareAndSet(ctx, "p-1", rec.Version, rec.Stock-1); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestPaymentRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	r := NewPaymentRepository(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)
	amount := decimal.RequireFromString("0.30")

	approved, _ := dompay.NewAttempt("a-1", "o-1", "p-1", amount, dompay.Approved("00"), now)
	failed, _ := dompay.NewAttempt("a-2", "o-2", "p-1", amount, dompay.TransportFailure("timeout"), now.Add(time.Second))
	for _, a := range []dompay.Attempt{approved, failed} {
		if err := r.AppendAttempt(ctx, a); err != nil {
			t.Fatalf("append attempt: %v", err)
		}
	}

	byOrder, err := r.ListAttempts(ctx, "o-2")
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(byOrder) != 1 || byOrder[0].Outcome != dompay.OutcomeTransportFailure || byOrder[0].BankResponseCode != nil {
		t.Fatalf("unexpected attempts: %+v", byOrder)
	}
	all, _ := r.ListAttempts(ctx, "")
	if len(all) != 2 || !all[0].Amount.Equal(amount) {
		t.Fatalf("unexpected attempts: %+v", all)
	}

	code := "00"
	d := dompay.Discrepancy{
		ID: "d-1", OrderID: "o-2", ProductID: "p-1", Amount: amount, BankResponseCode: &code,
		LateOutcome: dompay.OutcomeApproved, RecordedOutcome: dompay.OutcomeTransportFailure, DetectedAt: now,
	}
	if err := r.AppendDiscrepancy(ctx, d); err != nil {
		t.Fatalf("append discrepancy: %v", err)
	}
	ds, err := r.ListDiscrepancies(ctx)
	if err != nil || len(ds) != 1 || *ds[0].BankResponseCode != "00" {
		t.Fatalf("list discrepancies = %+v, %v", ds, err)
	}
}
