package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name the research API reports under.
const ServiceName = "brieflab.Research"

// DefaultRefreshInterval is how often the gRPC status is recomputed.
const DefaultRefreshInterval = 15 * time.Second

// GRPCServer publishes Checker results over the standard gRPC health service.
type GRPCServer struct {
	checker  *Checker
	server   *grpc.Server
	health   *health.Server
	interval time.Duration
}

// NewGRPCServer builds the server. It does not listen until Serve is called.
func NewGRPCServer(checker *Checker, interval time.Duration) *GRPCServer {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &GRPCServer{checker: checker, server: srv, health: hs, interval: interval}
}

// Refresh runs the probes and updates the published status.
func (g *GRPCServer) Refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if !g.checker.Check(ctx).Healthy() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
}

// Serve accepts connections on lis until ctx is cancelled, refreshing the
// status every interval.
func (g *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	g.Refresh(ctx)

	go func() {
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				g.health.Shutdown()
				g.server.GracefulStop()
				return
			case <-ticker.C:
				g.Refresh(ctx)
			}
		}
	}()

	if err := g.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve grpc health: %w", err)
	}
	return nil
}

// Probe asks a remote gRPC health service for the status of service.
func Probe(ctx context.Context, addr, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("dial health service at %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check: %w", err)
	}
	return resp.GetStatus(), nil
}
