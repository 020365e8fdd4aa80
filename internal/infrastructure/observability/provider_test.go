package observability

import (
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

type countingCounter struct{ total float64 }

func (c *countingCounter) Add(d float64, _ ...observability.Label) { c.total += d }
func (c *countingCounter) Bind(...observability.Label) observability.BoundCounter {
	return boundFunc(func(d float64) { c.total += d })
}

type boundFunc func(float64)

func (f boundFunc) Add(d float64) { f(d) }

func TestProviderFallsBackToNop(t *testing.T) {
	t.Parallel()

	p := New(nil, nil, nil, nil)
	if p.Tracer() == nil || p.Logger() == nil {
		t.Fatal("expected nop tracer and logger")
	}
	// must not panic on unknown keys
	p.Metrics().Counter(observability.MLedgerConflicts).Add(1)
	p.Metrics().Histogram(observability.MUsecaseDuration).Bind().Observe(0.1)
}

func TestProviderResolvesRegisteredCounter(t *testing.T) {
	t.Parallel()

	c := &countingCounter{}
	p := New(nil, nil, map[observability.MetricKey]observability.Counter{
		observability.MPaymentDiscrepancies: c,
	}, nil)

	p.Metrics().Counter(observability.MPaymentDiscrepancies).Add(2)
	p.Metrics().Counter(observability.MPaymentDiscrepancies).Bind().Add(1)

	if c.total != 3 {
		t.Fatalf("expected 3, got %v", c.total)
	}
}
