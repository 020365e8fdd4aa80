package rediscache

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/product"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type countingFinder struct {
	calls atomic.Int32
	p     *domain.Product
}

func (f *countingFinder) Get(_ context.Context, id string) (*domain.Product, error) {
	f.calls.Add(1)
	if f.p == nil || f.p.ID != id {
		return nil, domain.ErrNotFound
	}
	return f.p.Clone(), nil
}

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("skipping Redis integration tests: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func sampleProduct(id string) *domain.Product {
	p, _ := domain.New(id, "Lamp", "desk", decimal.RequireFromString("19.99"), 4, time.Now().UTC())
	return p
}

func TestCatalogReadThrough(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()
	id := "test-" + uuid.NewString()
	next := &countingFinder{p: sampleProduct(id)}
	c := NewCatalog(client, next, time.Minute, nil)
	t.Cleanup(func() { _ = c.Invalidate(context.Background(), id) })

	for i := 0; i < 3; i++ {
		got, err := c.Get(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !got.UnitPrice.Equal(decimal.RequireFromString("19.99")) || got.Name != "Lamp" {
			t.Fatalf("unexpected product: %+v", got)
		}
	}
	if n := next.calls.Load(); n != 1 {
		t.Fatalf("expected one backing lookup, got %d", n)
	}

	if err := c.Invalidate(ctx, id); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := c.Get(ctx, id); err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if n := next.calls.Load(); n != 2 {
		t.Fatalf("expected refill after invalidate, got %d lookups", n)
	}
}

func TestCatalogNotFoundIsNotCached(t *testing.T) {
	client := newClient(t)
	next := &countingFinder{}
	c := NewCatalog(client, next, time.Minute, nil)

	for i := 0; i < 2; i++ {
		if _, err := c.Get(context.Background(), "missing-"+uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if n := next.calls.Load(); n != 2 {
		t.Fatalf("expected 2 lookups, got %d", n)
	}
}

func TestCatalogDegradesWhenRedisIsDown(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	next := &countingFinder{p: sampleProduct("p-1")}
	c := NewCatalog(client, next, time.Minute, nil)
	got, err := c.Get(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("expected fallback to backing finder, got %v", err)
	}
	if got.ID != "p-1" {
		t.Fatalf("unexpected product: %+v", got)
	}
	if err := c.Invalidate(context.Background(), "p-1"); err == nil {
		t.Fatal("expected invalidate error with redis down")
	}
}
