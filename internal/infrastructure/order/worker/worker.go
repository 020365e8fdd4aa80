package worker

import (
	"context"

	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

// Worker raises a reconciliation alert for every order that ended with money or stock out of
// step: a reservation that could not be released, or a charge approved after compensation.
type Worker struct {
	subscriber domoutbox.Subscriber
	alerts     observability.Counter
	log        observability.Logger
}

func New(subscriber domoutbox.Subscriber, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		subscriber: subscriber,
		alerts:     tel.Metrics().Counter(observability.MReconciliationAlerts),
		log:        tel.Logger().With(observability.F("component", "order_worker")),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(domorder.CompensationFailedEvent{}.EventName(), w.handleCompensationFailed)
	w.subscriber.Subscribe(dompayment.LateApprovalEvent{}.EventName(), w.handleLateApproval)
}

func (w *Worker) handleCompensationFailed(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domorder.CompensationFailedEvent)
	if !ok {
		return nil
	}
	w.alert(ctx, "unreleased_reservation",
		observability.F("order_id", evt.OrderID),
		observability.F("product_id", evt.ProductID),
		observability.F("quantity", evt.Quantity),
		observability.F("release_error", evt.ReleaseError),
	)
	return nil
}

func (w *Worker) handleLateApproval(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(dompayment.LateApprovalEvent)
	if !ok {
		return nil
	}
	fields := []observability.Field{
		observability.F("order_id", evt.OrderID),
		observability.F("discrepancy_id", evt.DiscrepancyID),
		observability.F("amount", evt.Amount.String()),
	}
	if evt.BankResponseCode != nil {
		fields = append(fields, observability.F("bank_response_code", *evt.BankResponseCode))
	}
	w.alert(ctx, "charged_after_compensation", fields...)
	return nil
}

func (w *Worker) alert(ctx context.Context, kind string, fields ...observability.Field) {
	w.alerts.Add(1, observability.L("kind", kind))
	logctx.FromOr(ctx, w.log).Error("reconciliation_required",
		append([]observability.Field{observability.F("kind", kind)}, fields...)...,
	)
}
