package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	domprod "github.com/Zhima-Mochi/minishop-checkout/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"github.com/Zhima-Mochi/minishop-checkout/internal/pkg/clock"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	catalogService = "catalog-service"
	spanPrefix     = "UC."
)

var ErrRepository = errors.New("catalog: repository failure")

type IDGenerator interface {
	NewID() string
}

// Invalidator drops cached copies of a product after it changed.
type Invalidator interface {
	Invalidate(ctx context.Context, id string) error
}

type CreateInput struct {
	Name        string
	Description string
	UnitPrice   decimal.Decimal
	Stock       int64
}

type UpdateInput struct {
	ID          string
	Name        string
	Description string
	UnitPrice   decimal.Decimal
}

// Service manages catalog metadata. Stock is only set at creation; afterwards it belongs to
// the inventory ledger.
type Service struct {
	repo   domprod.Repository
	cache  Invalidator
	ids    IDGenerator
	clock  clock.Clock
	log    observability.Logger
	tracer observability.Tracer

	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewService(repo domprod.Repository, cache Invalidator, ids IDGenerator, clk clock.Clock, tel observability.Observability) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	m := tel.Metrics()
	return &Service{
		repo:         repo,
		cache:        cache,
		ids:          ids,
		clock:        clk,
		log:          tel.Logger().With(observability.F("service", catalogService)),
		tracer:       tel.Tracer(),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
	}
}

func (s *Service) List(ctx context.Context) (products []*domprod.Product, err error) {
	ctx, done := s.observe(ctx, "catalog.list", "ListProducts")
	defer func() { done(err) }()

	products, err = s.repo.List(ctx)
	if err != nil {
		return nil, wrap(err)
	}
	return products, nil
}

func (s *Service) Get(ctx context.Context, id string) (p *domprod.Product, err error) {
	ctx, done := s.observe(ctx, "catalog.get", "GetProduct", attribute.String("product.id", id))
	defer func() { done(err) }()

	p, err = s.repo.Get(ctx, id)
	if err != nil {
		return nil, wrap(err)
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (p *domprod.Product, err error) {
	ctx, done := s.observe(ctx, "catalog.create", "CreateProduct")
	defer func() { done(err) }()

	p, err = domprod.New(s.ids.NewID(), in.Name, in.Description, in.UnitPrice, in.Stock, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err = s.repo.Create(ctx, p); err != nil {
		return nil, wrap(err)
	}
	logctx.FromOr(ctx, s.log).Info("product_created",
		observability.F("product_id", p.ID),
		observability.F("stock", p.Stock),
	)
	return p, nil
}

func (s *Service) UpdateDetails(ctx context.Context, in UpdateInput) (p *domprod.Product, err error) {
	ctx, done := s.observe(ctx, "catalog.update", "UpdateProduct", attribute.String("product.id", in.ID))
	defer func() { done(err) }()

	p, err = s.repo.Get(ctx, in.ID)
	if err != nil {
		return nil, wrap(err)
	}
	if err = p.UpdateDetails(in.Name, in.Description, in.UnitPrice, s.clock.Now()); err != nil {
		return nil, err
	}
	if err = s.repo.UpdateDetails(ctx, p); err != nil {
		return nil, wrap(err)
	}
	s.invalidate(ctx, p.ID)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string) (err error) {
	ctx, done := s.observe(ctx, "catalog.delete", "DeleteProduct", attribute.String("product.id", id))
	defer func() { done(err) }()

	if err = s.repo.Delete(ctx, id); err != nil {
		return wrap(err)
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		logctx.FromOr(ctx, s.log).Warn("catalog_cache_invalidate_failed",
			observability.F("product_id", id),
			observability.F("error", err),
		)
	}
}

// observe opens the span and returns the closure that records RED metrics for it.
func (s *Service) observe(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, spanPrefix+spanName, append(attrs, attribute.String("use_case", useCase))...)
	start := time.Now()
	return ctx, func(err error) {
		outcome := "success"
		if err != nil && !errors.Is(err, domprod.ErrNotFound) {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.reqCounter.Add(1, observability.L("use_case", useCase), observability.L("outcome", outcome))
		s.durHistogram.Observe(time.Since(start).Seconds(), observability.L("use_case", useCase))
	}
}

func wrap(err error) error {
	switch {
	case errors.Is(err, domprod.ErrNotFound), errors.Is(err, domprod.ErrAlreadyExists):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
