package worker

import (
	"context"

	dominventory "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

// Worker watches committed reservations and warns when a product runs low.
type Worker struct {
	subscriber domoutbox.Subscriber
	threshold  int64
	log        observability.Logger
}

func New(subscriber domoutbox.Subscriber, threshold int64, logger observability.Logger) *Worker {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Worker{
		subscriber: subscriber,
		threshold:  threshold,
		log:        logger.With(observability.F("component", "inventory_worker")),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(dominventory.ReservedEvent{}.EventName(), w.handleReserved)
}

func (w *Worker) handleReserved(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(dominventory.ReservedEvent)
	if !ok {
		return nil
	}
	if evt.Stock > w.threshold {
		return nil
	}

	logger := logctx.FromOr(ctx, w.log)
	event := "low_stock"
	if evt.Stock == 0 {
		event = "stock_depleted"
	}
	logger.Warn(event,
		observability.F("product_id", evt.ProductID),
		observability.F("stock", evt.Stock),
		observability.F("threshold", w.threshold),
		observability.F("version", evt.Version),
	)
	return nil
}
