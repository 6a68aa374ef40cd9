package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	googlegrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"trade-market/internal/observability"
)

// ServiceName is the name probes ask for; "" reports the same status.
const ServiceName = "trade-market"

// HealthServer exposes the standard gRPC health protocol for internal probes.
type HealthServer struct {
	server *googlegrpc.Server
	health *health.Server
	log    *slog.Logger
}

// NewHealthServer builds the server in NOT_SERVING state.
func NewHealthServer(log *slog.Logger) *HealthServer {
	srv := googlegrpc.NewServer(
		googlegrpc.StatsHandler(otelgrpc.NewServerHandler()),
		googlegrpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	s := &HealthServer{server: srv, health: hs, log: log}
	s.SetServing(false)
	return s
}

// SetServing flips the reported status of the service.
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Monitor runs check every interval and mirrors the result until ctx ends.
func (s *HealthServer) Monitor(ctx context.Context, interval time.Duration, check func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, interval)
			err := check(checkCtx)
			cancel()
			if (err == nil) != healthy {
				healthy = err == nil
				s.log.Warn("health status changed", "serving", healthy, "error", err)
			}
			s.SetServing(healthy)
		}
	}
}

// Serve blocks until Stop is called or the listener fails.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.log.Info("grpc health server listening", "addr", lis.Addr().String())
	return s.server.Serve(lis)
}

// Stop reports NOT_SERVING to watchers and drains in-flight calls.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
