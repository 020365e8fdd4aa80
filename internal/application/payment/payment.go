package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"github.com/Zhima-Mochi/minishop-checkout/internal/pkg/clock"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	paymentService = "payment-service"
	useCaseLate    = "payment.reconcile_late"
	spanPrefix     = "UC."
	publishTimeout = 300 * time.Millisecond
	storeTimeout   = 2 * time.Second
)

var ErrRepository = errors.New("payment: repository failure")

type IDGenerator interface {
	NewID() string
}

// Service keeps the payment audit trail: one attempt per charge and a discrepancy for every
// approval that arrived after its order had already been compensated.
type Service struct {
	repo      dompay.Repository
	publisher domoutbox.Publisher
	ids       IDGenerator
	clock     clock.Clock

	log           observability.Logger
	tracer        observability.Tracer
	reqCounter    observability.Counter
	durHistogram  observability.Histogram
	discrepancies observability.Counter // payment_discrepancies_total{outcome}
}

func NewService(repo dompay.Repository, publisher domoutbox.Publisher, ids IDGenerator, clk clock.Clock, tel observability.Observability) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	m := tel.Metrics()
	return &Service{
		repo:          repo,
		publisher:     publisher,
		ids:           ids,
		clock:         clk,
		log:           tel.Logger().With(observability.F("service", paymentService)),
		tracer:        tel.Tracer(),
		reqCounter:    m.Counter(observability.MUsecaseRequests),
		durHistogram:  m.Histogram(observability.MUsecaseDuration),
		discrepancies: m.Counter(observability.MPaymentDiscrepancies),
	}
}

// RecordAttempt appends the audit record for one gateway call and announces it.
func (s *Service) RecordAttempt(ctx context.Context, orderID, productID string, amount decimal.Decimal, res dompay.Result) (dompay.Attempt, error) {
	attempt, err := dompay.NewAttempt(s.ids.NewID(), orderID, productID, amount, res, s.clock.Now())
	if err != nil {
		return dompay.Attempt{}, err
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := s.repo.AppendAttempt(storeCtx, attempt); err != nil {
		return attempt, fmt.Errorf("%w: append attempt: %w", ErrRepository, err)
	}

	s.publish(ctx, dompay.NewAttemptRecordedEvent(attempt))
	return attempt, nil
}

// ReconcileLate handles a gateway answer that arrived after the order was resolved as a
// transport failure. Approvals are recorded as discrepancies and never applied to the order.
func (s *Service) ReconcileLate(ctx context.Context, attempt dompay.Attempt, late dompay.Result) (_ *dompay.Discrepancy, err error) {
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("use_case", useCaseLate),
		observability.F("order_id", attempt.OrderID),
		observability.F("attempt_id", attempt.ID),
		observability.F("late_outcome", string(late.Outcome)),
	)
	ctx, span := s.tracer.Start(ctx, spanPrefix+"ReconcileLatePayment",
		attribute.String("use_case", useCaseLate),
		attribute.String("order.id", attempt.OrderID),
		attribute.String("payment.late_outcome", string(late.Outcome)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()
		s.reqCounter.Add(1, observability.L("use_case", useCaseLate), observability.L("outcome", outcome))
		s.durHistogram.Observe(time.Since(start).Seconds(), observability.L("use_case", useCaseLate))
	}()

	if !late.Approved() {
		statusText = "LATE_NOT_APPROVED"
		logger.Warn("late_payment_response",
			observability.F("reason", late.Reason),
		)
		return nil, nil
	}

	d := dompay.Discrepancy{
		ID:               s.ids.NewID(),
		OrderID:          attempt.OrderID,
		ProductID:        attempt.ProductID,
		Amount:           attempt.Amount,
		BankResponseCode: late.BankResponseCode,
		LateOutcome:      late.Outcome,
		RecordedOutcome:  attempt.Outcome,
		DetectedAt:       s.clock.Now(),
	}
	s.discrepancies.Add(1, observability.L("outcome", string(late.Outcome)))
	logger.Error("late_payment_approval",
		observability.F("discrepancy_id", d.ID),
		observability.F("product_id", d.ProductID),
		observability.F("amount", d.Amount.String()),
		observability.F("recorded_outcome", string(d.RecordedOutcome)),
	)

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err = s.repo.AppendDiscrepancy(storeCtx, d); err != nil {
		statusText = "DISCREPANCY_PERSIST_FAILED"
		err = fmt.Errorf("%w: append discrepancy: %w", ErrRepository, err)
	}

	s.publish(ctx, dompay.NewLateApprovalEvent(d))
	return &d, err
}

func (s *Service) ListAttempts(ctx context.Context, orderID string) ([]dompay.Attempt, error) {
	attempts, err := s.repo.ListAttempts(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: list attempts: %w", ErrRepository, err)
	}
	return attempts, nil
}

func (s *Service) ListDiscrepancies(ctx context.Context) ([]dompay.Discrepancy, error) {
	ds, err := s.repo.ListDiscrepancies(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list discrepancies: %w", ErrRepository, err)
	}
	return ds, nil
}

func (s *Service) publish(ctx context.Context, e domoutbox.Event) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, e); err != nil {
		logctx.FromOr(ctx, s.log).Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err),
		)
	}
}
