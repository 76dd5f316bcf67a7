package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthTracksDrain(t *testing.T) {
	h, err := StartHealth("127.0.0.1:0", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("StartHealth: %v", err)
	}
	defer h.Stop()

	conn, err := grpc.NewClient(h.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q): %v", service, err)
		}
		return resp.GetStatus()
	}

	if got := check(""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("overall = %v, want SERVING", got)
	}
	if got := check(DrainService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("before drain = %v, want NOT_SERVING", got)
	}
	h.DrainStarted()
	if got := check(DrainService); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("during drain = %v, want SERVING", got)
	}
	h.DrainFinished(errors.New("submission failed"))
	if got := check(DrainService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("after drain = %v, want NOT_SERVING", got)
	}
}

func TestStartHealthBadAddr(t *testing.T) {
	if _, err := StartHealth("256.0.0.1:bad", nil); err == nil {
		t.Fatal("expected listen error")
	}
}
