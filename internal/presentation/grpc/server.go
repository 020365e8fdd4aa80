package grpcpresentation

import (
	"context"
	"net"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// CheckoutService is the name readiness is reported under.
const CheckoutService = "minishop.checkout"

// Server exposes the standard gRPC health protocol for the checkout process.
type Server struct {
	srv    *grpc.Server
	health *health.Server
}

func NewServer(logger observability.Logger) *Server {
	if logger == nil {
		logger = observability.NopLogger()
	}
	logger = logger.With(observability.F("component", "grpc_server"))

	hs := health.NewServer()
	srv := grpc.NewServer(grpc.UnaryInterceptor(accessLog(logger)))
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{srv: srv, health: hs}
	s.SetServing(false)
	return s
}

// SetServing flips both the overall and the checkout service status.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(CheckoutService, st)
}

func (s *Server) Serve(lis net.Listener) error {
	return s.srv.Serve(lis)
}

// GracefulStop reports NOT_SERVING to watchers, then drains in-flight RPCs.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}

func accessLog(base observability.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		reqLogger := base.With(observability.F("rpc", info.FullMethod))
		resp, err := handler(logctx.With(ctx, reqLogger), req)
		reqLogger.Debug("grpc_access",
			observability.F("code", status.Code(err).String()),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
		return resp, err
	}
}
