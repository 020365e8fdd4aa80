package otelsdk

import (
	"context"
	"testing"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	providers, shutdown, err := Setup(context.Background(), Config{ServiceName: "checkout"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if providers.Tracer != nil || providers.Logger != nil {
		t.Fatal("expected no providers when endpoint is empty")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupWithEndpointInstallsProviders(t *testing.T) {
	providers, shutdown, err := Setup(context.Background(), Config{
		ServiceName: "checkout",
		Endpoint:    "127.0.0.1:4318",
		Insecure:    true,
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if providers.Tracer == nil || providers.Logger == nil {
		t.Fatal("expected tracer and logger providers")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// nothing was recorded, flushing with a cancelled context must not hang
	_ = shutdown(ctx)
}
