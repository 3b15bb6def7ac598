package api

import (
	"context"
	"log"
	"time"

	"github.com/benbjohnson/clock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// CatalogServiceName is the service name reported by the gRPC health service.
const CatalogServiceName = "storefront.catalog.v1.Catalog"

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GRPCHandler serves the standard gRPC health service for load balancers and
// orchestrators, with the catalog status following store reachability.
type GRPCHandler struct {
	server *grpc.Server
	health *health.Server
	store  Pinger
	clock  clock.Clock
	logger *log.Logger
}

// NewGRPCHandler creates the gRPC server with health and reflection
// registered. The catalog starts as NOT_SERVING until the first store check.
func NewGRPCHandler(p Pinger, clk clock.Clock, logger *log.Logger) *GRPCHandler {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = log.Default()
	}
	s := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
	hs.SetServingStatus(CatalogServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &GRPCHandler{server: s, health: hs, store: p, clock: clk, logger: logger}
}

// Server returns the underlying gRPC server.
func (g *GRPCHandler) Server() *grpc.Server { return g.server }

// CheckStore pings the store once and records the outcome for the catalog
// service and the server as a whole.
func (g *GRPCHandler) CheckStore(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := g.store.Ping(ctx); err != nil {
		g.logger.Printf("WARN: gRPC health: store ping failed: %v", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus(CatalogServiceName, status)
	g.health.SetServingStatus("", status)
	return status
}

// Watch re-checks the store every interval until ctx is done.
func (g *GRPCHandler) Watch(ctx context.Context, interval time.Duration) {
	g.CheckStore(ctx)
	ticker := g.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.CheckStore(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING and stops the server after
// in-flight RPCs finish.
func (g *GRPCHandler) Shutdown() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
