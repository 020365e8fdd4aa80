package outbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
)

type testEvent struct{ name string }

func (e testEvent) EventName() string { return e.name }

func TestBusDeliversToNamedAndWildcardSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil)
	var named, all atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	bus.Subscribe("order.settled", func(context.Context, domoutbox.Event) error {
		named.Add(1)
		wg.Done()
		return nil
	})
	bus.Subscribe(AllEvents, func(context.Context, domoutbox.Event) error {
		all.Add(1)
		wg.Done()
		return nil
	})
	bus.Start(context.Background())

	ctx := context.Background()
	if err := bus.Publish(ctx, testEvent{name: "order.settled"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Publish(ctx, testEvent{name: "inventory.reserved"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitTimeout(t, &wg)
	if named.Load() != 1 || all.Load() != 2 {
		t.Fatalf("expected 1 named and 2 wildcard deliveries, got %d and %d", named.Load(), all.Load())
	}
	if err := bus.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestBusStopDrainsAndRejectsLatePublish(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil)
	var delivered atomic.Int32
	bus.Subscribe("e", func(context.Context, domoutbox.Event) error {
		delivered.Add(1)
		return nil
	})

	for i := 0; i < 5; i++ {
		if err := bus.Publish(context.Background(), testEvent{name: "e"}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	// never started: Stop still dispatches what was queued
	if err := bus.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if delivered.Load() != 5 {
		t.Fatalf("expected 5 deliveries, got %d", delivered.Load())
	}
	if err := bus.Publish(context.Background(), testEvent{name: "e"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestBusSurvivesPanickingHandler(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil)
	var ok atomic.Bool
	bus.Subscribe("e", func(context.Context, domoutbox.Event) error { panic("boom") })
	bus.Subscribe("e", func(context.Context, domoutbox.Event) error {
		ok.Store(true)
		return errors.New("handled with error")
	})
	bus.Start(context.Background())

	if err := bus.Publish(context.Background(), testEvent{name: "e"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !ok.Load() {
		t.Fatal("second handler did not run")
	}
}

func TestBusHandlerContextKeepsValuesWithoutCancellation(t *testing.T) {
	t.Parallel()

	type key struct{}
	got := make(chan context.Context, 1)
	bus := NewBus(nil, WithHandlerContext(func(ctx context.Context, e domoutbox.Event) context.Context {
		return context.WithValue(ctx, key{}, e.EventName())
	}))
	bus.Subscribe("e", func(ctx context.Context, _ domoutbox.Event) error {
		got <- ctx
		return nil
	})
	bus.Start(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	if err := bus.Publish(ctx, testEvent{name: "e"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	cancel()

	select {
	case hctx := <-got:
		if hctx.Value(key{}) != "e" {
			t.Fatal("handler context missing value")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
	_ = bus.Stop(context.Background())
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handlers")
	}
}
