package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/acuvera/internal/common"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "acuvera.Bills"

// NewGRPCServer returns a server with the standard health and reflection
// services registered.
func NewGRPCServer(logger *slog.Logger) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryErrors(logger)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	reflection.Register(s)
	return s, hs
}

// WatchHealth runs check every interval and publishes the result until ctx is done.
func WatchHealth(ctx context.Context, hs *health.Server, check func(context.Context) error, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	updateHealth(ctx, hs, check, logger)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
			updateHealth(ctx, hs, check, logger)
		}
	}
}

func updateHealth(ctx context.Context, hs *health.Server, check func(context.Context) error, logger *slog.Logger) {
	st := healthpb.HealthCheckResponse_SERVING
	if err := check(ctx); err != nil {
		logger.Warn("grpc.health.not_serving", "error", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", st)
	hs.SetServingStatus(ServiceName, st)
}

// unaryErrors logs failed calls and maps application errors onto gRPC codes.
func unaryErrors(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		if _, ok := status.FromError(err); ok {
			return resp, err
		}
		logger.Warn("grpc.call.failed", "method", info.FullMethod, "elapsed_ms", time.Since(start).Milliseconds(), "error", err)
		return resp, common.GRPCError(err)
	}
}
