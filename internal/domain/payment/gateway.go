package payment

import "context"

// Gateway charges an external processor. Any returned error is treated as a transport failure.
type Gateway interface {
	Charge(ctx context.Context, c Charge) (Result, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, c Charge) (Result, error)

func (f GatewayFunc) Charge(ctx context.Context, c Charge) (Result, error) { return f(ctx, c) }
