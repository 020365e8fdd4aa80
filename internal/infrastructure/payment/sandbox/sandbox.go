package sandbox

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

const (
	codeApproved = "00"
	codeDeclined = "51"
)

type Config struct {
	// SuccessRate is the probability in [0,1] that a charge is approved.
	SuccessRate float64
	MinLatency  time.Duration
	MaxLatency  time.Duration
	Seed        int64
}

// Gateway simulates a processor: it waits a random latency, then approves or declines.
type Gateway struct {
	mu     sync.Mutex
	random *rand.Rand
	cfg    Config
}

func New(cfg Config) *Gateway {
	if cfg.SuccessRate < 0 {
		cfg.SuccessRate = 0
	}
	if cfg.SuccessRate > 1 {
		cfg.SuccessRate = 1
	}
	if cfg.MaxLatency < cfg.MinLatency {
		cfg.MaxLatency = cfg.MinLatency
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Gateway{random: rand.New(rand.NewSource(seed)), cfg: cfg}
}

func (g *Gateway) Charge(ctx context.Context, c dompay.Charge) (dompay.Result, error) {
	if c.Amount.IsNegative() {
		return dompay.Result{}, dompay.ErrInvalidAmount
	}
	if c.OrderID == "" {
		return dompay.Result{}, errors.New("sandbox: order id is required")
	}

	g.mu.Lock()
	delay := g.cfg.MinLatency
	if spread := g.cfg.MaxLatency - g.cfg.MinLatency; spread > 0 {
		delay += time.Duration(g.random.Int63n(int64(spread)))
	}
	approved := g.random.Float64() < g.cfg.SuccessRate
	g.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return dompay.Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	if approved {
		return dompay.Approved(codeApproved), nil
	}
	return dompay.Declined(codeDeclined, "sandbox: declined"), nil
}

func (g *Gateway) SuccessRate() float64 { return g.cfg.SuccessRate }
