package server

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// DrainService is the health service name that tracks an active drain.
const DrainService = "qcqueue.Drain"

// Health serves the gRPC health protocol for a running dispatcher. The
// process-wide status is SERVING while the server is up; DrainService is
// SERVING only between DrainStarted and DrainFinished.
type Health struct {
	srv    *grpc.Server
	hs     *health.Server
	lis    net.Listener
	logger *slog.Logger
}

// StartHealth listens on addr and serves in the background.
func StartHealth(addr string, logger *slog.Logger) (*Health, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(DrainService, healthpb.HealthCheckResponse_NOT_SERVING)
	// Reflection for grpcurl
	reflection.Register(srv)

	h := &Health{srv: srv, hs: hs, lis: lis, logger: logger}
	go func() {
		if err := srv.Serve(lis); err != nil {
			logger.Error("health server stopped", "error", err)
		}
	}()
	logger.Info("health server listening", "addr", lis.Addr().String())
	return h, nil
}

// Addr is the bound listen address, useful when addr had port 0.
func (h *Health) Addr() string { return h.lis.Addr().String() }

func (h *Health) DrainStarted() {
	h.hs.SetServingStatus(DrainService, healthpb.HealthCheckResponse_SERVING)
}

func (h *Health) DrainFinished(err error) {
	if err != nil {
		h.logger.Warn("drain finished with error", "error", err)
	}
	h.hs.SetServingStatus(DrainService, healthpb.HealthCheckResponse_NOT_SERVING)
}

// Stop marks everything NOT_SERVING and waits for in-flight RPCs.
func (h *Health) Stop() {
	h.hs.Shutdown()
	h.srv.GracefulStop()
	h.logger.Debug("health server stopped")
}
