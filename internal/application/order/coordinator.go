package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	domprod "github.com/Zhima-Mochi/minishop-checkout/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"github.com/Zhima-Mochi/minishop-checkout/internal/pkg/clock"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService          = "order-service"
	useCasePlaceOrder     = "order.place"
	spanPrefix            = "UC."
	gatewayPeer           = "payment_gateway"
	gatewayEndpoint       = "charge"
	publishTimeout        = 300 * time.Millisecond
	defaultPaymentTimeout = 5 * time.Second
	defaultLateWindow     = 30 * time.Second
	// lateGrace covers gateways that overrun their context deadline slightly.
	lateGrace = time.Second
)

type Config struct {
	// PaymentTimeout is how long the coordinator waits for the gateway before compensating.
	PaymentTimeout time.Duration
	// LateResponseWindow is how long after PaymentTimeout a gateway reply is still watched for.
	LateResponseWindow time.Duration
}

type PlaceOrderInput struct {
	ProductID string
	Quantity  int64
}

type PlaceOrderResult struct {
	OrderID          string
	ProductID        string
	Quantity         int64
	Amount           decimal.Decimal
	RemainingStock   int64
	AttemptID        string
	BankResponseCode *string
	State            domorder.State
}

var _ application.UseCase[PlaceOrderInput, *PlaceOrderResult] = (*Coordinator)(nil)

// Coordinator places an order as a two-step saga: reserve stock, charge, and release the
// reservation again when the charge does not go through.
type Coordinator struct {
	products  domprod.Finder
	ledger    Ledger
	gateway   dompay.Gateway
	payments  PaymentRecorder
	publisher domoutbox.Publisher
	ids       IDGenerator
	clock     clock.Clock
	cfg       Config

	late sync.WaitGroup

	log             observability.Logger
	tracer          observability.Tracer
	reqCounter      observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram    observability.Histogram // usecase_duration_seconds{use_case}
	extCounter      observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram    observability.Histogram // external_request_duration_seconds{peer,endpoint}
	inconsistencies observability.Counter   // ledger_inconsistencies_total
}

func NewCoordinator(
	products domprod.Finder,
	ledger Ledger,
	gateway dompay.Gateway,
	payments PaymentRecorder,
	publisher domoutbox.Publisher,
	ids IDGenerator,
	clk clock.Clock,
	tel observability.Observability,
	cfg Config,
) *Coordinator {
	if tel == nil {
		tel = observability.Nop()
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = defaultPaymentTimeout
	}
	if cfg.LateResponseWindow < 0 {
		cfg.LateResponseWindow = defaultLateWindow
	}
	m := tel.Metrics()
	return &Coordinator{
		products:        products,
		ledger:          ledger,
		gateway:         gateway,
		payments:        payments,
		publisher:       publisher,
		ids:             ids,
		clock:           clk,
		cfg:             cfg,
		log:             tel.Logger().With(observability.F("service", orderService)),
		tracer:          tel.Tracer(),
		reqCounter:      m.Counter(observability.MUsecaseRequests),
		durHistogram:    m.Histogram(observability.MUsecaseDuration),
		extCounter:      m.Counter(observability.MExternalRequests),
		extHistogram:    m.Histogram(observability.MExternalRequestDuration),
		inconsistencies: m.Counter(observability.MLedgerInconsistencies),
	}
}

// Execute runs one order placement to a terminal state. Failures are reported as
// ErrProductNotFound, *OutOfStockError, *PaymentFailedError, ErrInvalidRequest or ErrTransient.
func (c *Coordinator) Execute(ctx context.Context, cmd PlaceOrderInput) (_ *PlaceOrderResult, err error) {
	logger := logctx.FromOr(ctx, c.log).With(
		observability.F("use_case", useCasePlaceOrder),
		observability.F("product_id", cmd.ProductID),
		observability.F("quantity", cmd.Quantity),
	)
	ctx, span := c.tracer.Start(ctx, spanPrefix+"PlaceOrder",
		attribute.String("use_case", useCasePlaceOrder),
		attribute.String("product.id", cmd.ProductID),
		attribute.Int64("order.quantity", cmd.Quantity),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var placement *domorder.Placement

	defer func() {
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		if placement != nil {
			span.SetAttributes(attribute.String("order.state", placement.State.String()))
		}
		span.End()

		latency := time.Since(start).Seconds()
		c.reqCounter.Add(1,
			observability.L("use_case", useCasePlaceOrder),
			observability.L("outcome", outcome),
		)
		c.durHistogram.Observe(latency,
			observability.L("use_case", useCasePlaceOrder),
		)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", latency),
		}
		if placement != nil {
			fields = append(fields,
				observability.F("order_id", placement.ID),
				observability.F("state", placement.State.String()),
			)
			if !placement.Amount.IsZero() {
				fields = append(fields, observability.F("amount", placement.Amount.String()))
			}
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if err != nil {
			fields = append(fields, observability.F("error", err))
		}
		logger.Info("use_case_done", fields...)
	}()

	if strings.TrimSpace(cmd.ProductID) == "" {
		statusText = "PRODUCT_ID_REQUIRED"
		return nil, invalid("product id is required")
	}
	if cmd.Quantity <= 0 {
		statusText = "QUANTITY_INVALID"
		return nil, invalid("quantity must be greater than zero")
	}

	placement, err = domorder.NewPlacement(c.ids.NewID(), cmd.ProductID, cmd.Quantity, c.clock.Now())
	if err != nil {
		statusText = "QUANTITY_INVALID"
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	logger = logger.With(observability.F("order_id", placement.ID))
	ctx = logctx.With(ctx, logger)
	span.SetAttributes(attribute.String("order.id", placement.ID))

	// Start: look the product up.
	product, lookupErr := c.products.Get(ctx, cmd.ProductID)
	if lookupErr != nil {
		if errors.Is(lookupErr, domprod.ErrNotFound) {
			statusText = "PRODUCT_NOT_FOUND"
			return nil, c.reject(placement, domorder.StateStart, "product not found", ErrProductNotFound)
		}
		statusText = "PRODUCT_LOOKUP_FAILED"
		return nil, c.reject(placement, domorder.StateStart, lookupErr.Error(), transient("look up product", lookupErr))
	}
	if err = c.advance(placement, domorder.StateReserving); err != nil {
		statusText = "STATE_TRANSITION_FAILED"
		return nil, err
	}

	// Reserving: take the stock.
	remaining, reserveErr := c.ledger.Reserve(ctx, cmd.ProductID, cmd.Quantity)
	if reserveErr != nil {
		var ise *dominv.InsufficientStockError
		switch {
		case errors.As(reserveErr, &ise):
			statusText = "OUT_OF_STOCK"
			return nil, c.reject(placement, domorder.StateReserving, "out of stock", &OutOfStockError{
				ProductID: cmd.ProductID,
				Requested: cmd.Quantity,
				Available: ise.Available,
			})
		case errors.Is(reserveErr, dominv.ErrNotFound):
			statusText = "PRODUCT_NOT_FOUND"
			return nil, c.reject(placement, domorder.StateReserving, "product not found", ErrProductNotFound)
		default:
			statusText = "RESERVE_FAILED"
			return nil, c.reject(placement, domorder.StateReserving, reserveErr.Error(), transient("reserve stock", reserveErr))
		}
	}
	if err = c.advance(placement, domorder.StateReserved); err != nil {
		statusText = "STATE_TRANSITION_FAILED"
		return nil, err
	}
	span.AddEvent("inventory.reserved", trace.WithAttributes(attribute.Int64("inventory.stock", remaining)))

	// Reserved: price the order and charge it.
	placement.Amount = product.UnitPrice.Mul(decimal.NewFromInt(cmd.Quantity))
	if err = c.advance(placement, domorder.StateCharging); err != nil {
		statusText = "STATE_TRANSITION_FAILED"
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.amount", placement.Amount.String()))

	res, pending := c.charge(ctx, placement)
	span.AddEvent("payment.result", trace.WithAttributes(attribute.String("payment.outcome", string(res.Outcome))))

	attempt, recErr := c.payments.RecordAttempt(ctx, placement.ID, placement.ProductID, placement.Amount, res)
	if recErr != nil {
		logger.Error("payment_attempt_persist_failed",
			observability.F("payment_outcome", string(res.Outcome)),
			observability.F("error", recErr),
		)
	}
	if pending != nil {
		c.watchLate(ctx, attempt, pending)
	}

	// Charging: settle, or compensate.
	if res.Approved() {
		if err = c.advance(placement, domorder.StateSettled); err != nil {
			statusText = "STATE_TRANSITION_FAILED"
			return nil, err
		}
		c.publish(ctx, domorder.NewSettledEvent(placement))
		return &PlaceOrderResult{
			OrderID:          placement.ID,
			ProductID:        placement.ProductID,
			Quantity:         placement.Quantity,
			Amount:           placement.Amount,
			RemainingStock:   remaining,
			AttemptID:        attempt.ID,
			BankResponseCode: res.BankResponseCode,
			State:            placement.State,
		}, nil
	}

	statusText = "PAYMENT_FAILED"
	err = c.compensate(ctx, placement, res)
	var pfe *PaymentFailedError
	if errors.As(err, &pfe) && pfe.Inconsistency != nil {
		statusText = "COMPENSATION_FAILED"
	}
	return nil, err
}

// Wait blocks until every late gateway reply being watched has been handled or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.late.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) advance(p *domorder.Placement, next domorder.State) error {
	if err := p.Transition(next, c.clock.Now()); err != nil {
		return fmt.Errorf("order %s: %w", p.ID, err)
	}
	return nil
}

// reject ends a placement that never reached the charge. from is only used for the log.
func (c *Coordinator) reject(p *domorder.Placement, from domorder.State, reason string, cause error) error {
	if err := p.Fail(domorder.StateRejected, reason, c.clock.Now()); err != nil {
		return errors.Join(cause, fmt.Errorf("order %s from %s: %w", p.ID, from, err))
	}
	return cause
}

// charge calls the gateway without letting the caller's cancellation reach it and waits at most
// PaymentTimeout. When it stops waiting, the reply channel is returned so a late answer can be
// reconciled.
func (c *Coordinator) charge(ctx context.Context, p *domorder.Placement) (dompay.Result, <-chan dompay.Result) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.PaymentTimeout+c.cfg.LateResponseWindow)
	replies := make(chan dompay.Result, 1)
	req := dompay.Charge{OrderID: p.ID, Amount: p.Amount}

	go func() {
		defer cancel()
		start := time.Now()
		res, err := c.gateway.Charge(callCtx, req)
		switch {
		case err != nil:
			res = dompay.TransportFailure(err.Error())
		case res.Outcome != dompay.OutcomeApproved && res.Outcome != dompay.OutcomeDeclined && res.Outcome != dompay.OutcomeTransportFailure:
			res = dompay.TransportFailure(fmt.Sprintf("unrecognised gateway outcome %q", res.Outcome))
		}
		c.extCounter.Add(1,
			observability.L("peer", gatewayPeer),
			observability.L("endpoint", gatewayEndpoint),
			observability.L("outcome", string(res.Outcome)),
		)
		c.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", gatewayPeer),
			observability.L("endpoint", gatewayEndpoint),
		)
		replies <- res
	}()

	timer := time.NewTimer(c.cfg.PaymentTimeout)
	defer timer.Stop()

	select {
	case res := <-replies:
		return res, nil
	case <-timer.C:
		return dompay.TransportFailure(fmt.Sprintf("payment gateway did not answer within %s", c.cfg.PaymentTimeout)), replies
	case <-ctx.Done():
		return dompay.TransportFailure("request abandoned while charging: " + ctx.Err().Error()), replies
	}
}

func (c *Coordinator) watchLate(ctx context.Context, attempt dompay.Attempt, replies <-chan dompay.Result) {
	ctx = context.WithoutCancel(ctx)
	logger := logctx.FromOr(ctx, c.log)

	c.late.Add(1)
	go func() {
		defer c.late.Done()
		timer := time.NewTimer(c.cfg.LateResponseWindow + lateGrace)
		defer timer.Stop()

		select {
		case res := <-replies:
			if _, err := c.payments.ReconcileLate(ctx, attempt, res); err != nil {
				logger.Error("late_payment_reconcile_failed", observability.F("error", err))
			}
		case <-timer.C:
			logger.Warn("payment_reply_never_arrived",
				observability.F("attempt_id", attempt.ID),
			)
		}
	}()
}

// compensate releases the reservation of a failed charge exactly once.
func (c *Coordinator) compensate(ctx context.Context, p *domorder.Placement, res dompay.Result) error {
	logger := logctx.FromOr(ctx, c.log)
	reason := string(res.Outcome)
	if res.Reason != "" {
		reason += ": " + res.Reason
	}
	pfe := &PaymentFailedError{
		OrderID:          p.ID,
		Outcome:          res.Outcome,
		Reason:           res.Reason,
		BankResponseCode: res.BankResponseCode,
	}
	if err := p.Fail(domorder.StateCompensating, reason, c.clock.Now()); err != nil {
		return errors.Join(pfe, err)
	}

	// The reservation is restored even if the caller has already gone away.
	_, releaseErr := c.ledger.Release(context.WithoutCancel(ctx), p.ProductID, p.Quantity)
	if releaseErr != nil {
		pfe.Inconsistency = &LedgerInconsistencyError{
			OrderID:   p.ID,
			ProductID: p.ProductID,
			Quantity:  p.Quantity,
			Err:       releaseErr,
		}
		c.inconsistencies.Add(1)
		logger.Error("compensation_failed",
			observability.F("payment_outcome", string(res.Outcome)),
			observability.F("unreleased_quantity", p.Quantity),
			observability.F("error", releaseErr),
		)
		if err := c.advance(p, domorder.StateCompensationFailed); err != nil {
			return errors.Join(pfe, err)
		}
		c.publish(ctx, domorder.NewCompensationFailedEvent(p, releaseErr))
		return pfe
	}

	if err := c.advance(p, domorder.StateCompensated); err != nil {
		return errors.Join(pfe, err)
	}
	c.publish(ctx, domorder.NewCompensatedEvent(p))
	return pfe
}

func (c *Coordinator) publish(ctx context.Context, e domoutbox.Event) {
	if c.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := c.publisher.Publish(pubCtx, e); err != nil {
		logctx.FromOr(ctx, c.log).Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err),
		)
	}
}
