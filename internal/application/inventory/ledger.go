package inventory

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"github.com/Zhima-Mochi/minishop-checkout/internal/pkg/clock"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	inventoryService   = "inventory-service"
	useCaseReserve     = "inventory.reserve"
	useCaseRelease     = "inventory.release"
	spanPrefix         = "UC."
	publishTimeout     = 300 * time.Millisecond
	defaultMaxAttempts = 8
	defaultBackoff     = 2 * time.Millisecond
	maxBackoff         = 100 * time.Millisecond
)

type Config struct {
	// MaxAttempts bounds read-compute-commit cycles per operation.
	MaxAttempts int
	// Backoff is the base delay after a conflict; it doubles per attempt with jitter.
	Backoff time.Duration
}

// Ledger owns every write to product stock. Each operation reads the record, applies a pure
// mutation and commits it behind the version that was read, retrying on conflicts.
type Ledger struct {
	store       dominv.Store
	publisher   domoutbox.Publisher
	clock       clock.Clock
	maxAttempts int
	backoff     time.Duration

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	conflicts    observability.Counter   // ledger_conflicts_total{operation}
}

func NewLedger(store dominv.Store, publisher domoutbox.Publisher, clk clock.Clock, tel observability.Observability, cfg Config) *Ledger {
	if tel == nil {
		tel = observability.Nop()
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = defaultBackoff
	}
	m := tel.Metrics()
	return &Ledger{
		store:        store,
		publisher:    publisher,
		clock:        clk,
		maxAttempts:  cfg.MaxAttempts,
		backoff:      cfg.Backoff,
		log:          tel.Logger().With(observability.F("service", inventoryService)),
		tracer:       tel.Tracer(),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		conflicts:    m.Counter(observability.MLedgerConflicts),
	}
}

// Reserve takes quantity out of stock and returns what is left. It fails with
// *dominv.InsufficientStockError, leaving stock untouched, when there is not enough.
func (l *Ledger) Reserve(ctx context.Context, productID string, quantity int64) (int64, error) {
	rec, err := l.execute(ctx, useCaseReserve, "ReserveStock", productID, quantity, dominv.Reserve(quantity))
	if err != nil {
		return 0, err
	}
	l.publish(ctx, dominv.ReservedEvent{
		ProductID:  productID,
		Quantity:   quantity,
		Stock:      rec.Stock,
		Version:    rec.Version,
		OccurredAt: l.clock.Now(),
	})
	return rec.Stock, nil
}

// Release puts quantity back into stock. It is the compensating counterpart of Reserve.
func (l *Ledger) Release(ctx context.Context, productID string, quantity int64) (int64, error) {
	rec, err := l.execute(ctx, useCaseRelease, "ReleaseStock", productID, quantity, dominv.Release(quantity))
	if err != nil {
		return 0, err
	}
	l.publish(ctx, dominv.ReleasedEvent{
		ProductID:  productID,
		Quantity:   quantity,
		Stock:      rec.Stock,
		Version:    rec.Version,
		OccurredAt: l.clock.Now(),
	})
	return rec.Stock, nil
}

func (l *Ledger) execute(ctx context.Context, useCase, spanName, productID string, quantity int64, mutate dominv.Mutation) (_ dominv.Record, err error) {
	logger := logctx.FromOr(ctx, l.log).With(
		observability.F("use_case", useCase),
		observability.F("product_id", productID),
		observability.F("quantity", quantity),
	)
	ctx, span := l.tracer.Start(ctx, spanPrefix+spanName,
		attribute.String("use_case", useCase),
		attribute.String("product.id", productID),
		attribute.Int64("inventory.quantity", quantity),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	attempts := 0
	var committed dominv.Record

	defer func() {
		if err != nil {
			outcome, statusText = "error", statusFromError(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.SetAttributes(attribute.Int("inventory.attempts", attempts))
		span.End()

		latency := time.Since(start).Seconds()
		l.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		l.durHistogram.Observe(latency,
			observability.L("use_case", useCase),
		)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", latency),
			observability.F("attempts", attempts),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if err != nil {
			fields = append(fields, observability.F("error", err))
		} else {
			fields = append(fields,
				observability.F("stock", committed.Stock),
				observability.F("version", committed.Version),
			)
		}
		logger.Info("use_case_done", fields...)
	}()

	for {
		attempts++
		current, loadErr := l.store.Load(ctx, productID)
		if loadErr != nil {
			return dominv.Record{}, fmt.Errorf("inventory: load %s: %w", productID, loadErr)
		}

		next, mutErr := mutate(current)
		if mutErr != nil {
			return dominv.Record{}, mutErr
		}

		casErr := l.store.CompareAndSet(ctx, productID, current.Version, next)
		if casErr == nil {
			committed = dominv.Record{ProductID: productID, Stock: next, Version: current.Version + 1}
			return committed, nil
		}
		if !errors.Is(casErr, dominv.ErrVersionConflict) {
			return dominv.Record{}, fmt.Errorf("inventory: commit %s: %w", productID, casErr)
		}

		l.conflicts.Add(1, observability.L("operation", useCase))
		span.AddEvent("inventory.version_conflict", trace.WithAttributes(
			attribute.Int64("inventory.version", current.Version),
			attribute.Int("inventory.attempt", attempts),
		))
		if attempts >= l.maxAttempts {
			return dominv.Record{}, fmt.Errorf("%w: %s after %d attempts", dominv.ErrConflictRetriesExhausted, productID, attempts)
		}
		if waitErr := l.wait(ctx, attempts); waitErr != nil {
			return dominv.Record{}, waitErr
		}
	}
}

func (l *Ledger) wait(ctx context.Context, attempt int) error {
	if l.backoff == 0 {
		return ctx.Err()
	}
	d := l.backoff << (attempt - 1)
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	d = d/2 + rand.N(d/2+1)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (l *Ledger) publish(ctx context.Context, e domoutbox.Event) {
	if l.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := l.publisher.Publish(pubCtx, e); err != nil {
		logctx.FromOr(ctx, l.log).Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err),
		)
	}
}

func statusFromError(err error) string {
	switch {
	case errors.Is(err, dominv.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, dominv.ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, dominv.ErrInvalidQuantity):
		return "INVALID_QUANTITY"
	case errors.Is(err, dominv.ErrConflictRetriesExhausted):
		return "CONFLICT_RETRIES_EXHAUSTED"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "CONTEXT_DONE"
	default:
		return "STORE_FAILED"
	}
}
