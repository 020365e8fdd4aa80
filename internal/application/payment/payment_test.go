package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/pkg/clock"
	"github.com/shopspring/decimal"
)

type failingRepo struct{ dompay.Repository }

func (failingRepo) AppendAttempt(context.Context, dompay.Attempt) error {
	return errors.New("disk full")
}

type eventNames []string

func (e *eventNames) Publish(_ context.Context, ev domoutbox.Event) error {
	*e = append(*e, ev.EventName())
	return nil
}

type counter struct {
	observability.Counter
	total float64
}

func (c *counter) Add(d float64, _ ...observability.Label) { c.total += d }

type metricsWith struct {
	observability.Metrics
	discrepancies *counter
}

func (m metricsWith) Counter(k observability.MetricKey) observability.Counter {
	if k == observability.MPaymentDiscrepancies {
		return m.discrepancies
	}
	return m.Metrics.Counter(k)
}

type telWith struct {
	observability.Observability
	metrics observability.Metrics
}

func (t telWith) Metrics() observability.Metrics { return t.metrics }

func TestRecordAttempt(t *testing.T) {
	t.Parallel()

	repo := memory.NewPaymentRepository()
	var events eventNames
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(repo, &events, id.NewUUIDGenerator(), clock.NewManual(now), nil)

	a, err := svc.RecordAttempt(context.Background(), "o-1", "p-1", decimal.NewFromInt(10), dompay.Declined("05", "do not honor"))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !a.CreatedAt.Equal(now) || a.Outcome != dompay.OutcomeDeclined {
		t.Fatalf("unexpected attempt %+v", a)
	}
	got, _ := svc.ListAttempts(context.Background(), "o-1")
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("unexpected attempts %+v", got)
	}
	if len(events) != 1 || events[0] != "payment.attempt_recorded" {
		t.Fatalf("unexpected events %v", events)
	}
}

func TestRecordAttemptSurfacesRepositoryFailure(t *testing.T) {
	t.Parallel()

	svc := NewService(failingRepo{memory.NewPaymentRepository()}, nil, id.NewUUIDGenerator(), nil, nil)
	if _, err := svc.RecordAttempt(context.Background(), "o-1", "p-1", decimal.NewFromInt(1), dompay.Approved("")); !errors.Is(err, ErrRepository) {
		t.Fatalf("expected ErrRepository, got %v", err)
	}
}

func TestReconcileLate(t *testing.T) {
	t.Parallel()

	attempt := dompay.Attempt{
		ID:        "a-1",
		OrderID:   "o-1",
		ProductID: "p-1",
		Amount:    decimal.RequireFromString("10.00"),
		Outcome:   dompay.OutcomeTransportFailure,
	}

	tests := []struct {
		name            string
		late            dompay.Result
		wantDiscrepancy bool
	}{
		{name: "late approval", late: dompay.Approved("00"), wantDiscrepancy: true},
		{name: "late decline", late: dompay.Declined("51", "no funds")},
		{name: "late transport failure", late: dompay.TransportFailure("context deadline exceeded")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := memory.NewPaymentRepository()
			var events eventNames
			c := &counter{}
			tel := telWith{
				Observability: observability.Nop(),
				metrics:       metricsWith{Metrics: observability.NopMetrics(), discrepancies: c},
			}
			svc := NewService(repo, &events, id.NewUUIDGenerator(), nil, tel)

			d, err := svc.ReconcileLate(context.Background(), attempt, tt.late)
			if err != nil {
				t.Fatalf("reconcile: %v", err)
			}
			ds, _ := svc.ListDiscrepancies(context.Background())
			if !tt.wantDiscrepancy {
				if d != nil || len(ds) != 0 || c.total != 0 || len(events) != 0 {
					t.Fatalf("no discrepancy expected, got %+v", ds)
				}
				return
			}
			if d == nil || len(ds) != 1 || ds[0].OrderID != "o-1" || *ds[0].BankResponseCode != "00" {
				t.Fatalf("unexpected discrepancies %+v", ds)
			}
			if c.total != 1 {
				t.Fatalf("expected discrepancy metric 1, got %v", c.total)
			}
			if len(events) != 1 || events[0] != "payment.late_approval" {
				t.Fatalf("unexpected events %v", events)
			}
		})
	}
}
