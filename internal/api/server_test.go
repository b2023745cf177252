package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-hotspot/internal/config"
	"github.com/miradorstack/mirador-hotspot/internal/models"
	"github.com/miradorstack/mirador-hotspot/internal/utils"
)

func startTestServer(t *testing.T, svc *stubService) *Server {
	t.Helper()
	srv, err := NewServer(config.ServerConfig{
		HTTPAddress:     "127.0.0.1:0",
		GRPCAddress:     "127.0.0.1:0",
		GracefulTimeout: time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	go func() { _ = srv.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), srv.GracefulTimeout())
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv
}

func dial(t *testing.T, addr string) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPCGenerateHotspots(t *testing.T) {
	svc := &stubService{snapshot: testSnapshot()}
	srv := startTestServer(t, svc)
	conn := dial(t, srv.GRPCAddress())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	in, err := structpb.NewStruct(map[string]any{"minClusterSize": 3, "forceReclustering": true})
	if err != nil {
		t.Fatal(err)
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, "/"+ServiceName+"/GenerateHotspots", in, out); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	got := out.AsMap()
	if got["runId"] != "run-1" || got["hotspotsCreated"].(float64) != 1 {
		t.Fatalf("unexpected response: %v", got)
	}
	if svc.runReq.Options.MinClusterSize != 3 || !svc.runReq.Options.ForceReclustering {
		t.Fatalf("options not decoded: %+v", svc.runReq.Options)
	}

	svc.snapshot.Metrics.Reused = true
	out = new(structpb.Struct)
	if err := conn.Invoke(ctx, "/"+ServiceName+"/GenerateHotspots", in, out); err != nil {
		t.Fatalf("invoke reused: %v", err)
	}
	if got := out.AsMap()["hotspotsCreated"].(float64); got != 0 {
		t.Fatalf("reused run should create no hotspots, got %v", got)
	}

	runIn, _ := structpb.NewStruct(map[string]any{"runId": "nope"})
	err = conn.Invoke(ctx, "/"+ServiceName+"/GetRun", runIn, new(structpb.Struct))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}

	health := healthpb.NewHealthClient(conn)
	resp, err := health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health: %v %v", resp, err)
	}
}

func TestGRPCGetHotspots(t *testing.T) {
	svc := &stubService{view: models.HotspotView{SchemaVersion: models.HotspotSchemaVersion, State: models.ViewEmpty, Hotspots: []models.Hotspot{}}}
	srv := startTestServer(t, svc)
	conn := dial(t, srv.GRPCAddress())

	out := new(structpb.Struct)
	if err := conn.Invoke(context.Background(), "/"+ServiceName+"/GetHotspots", &structpb.Struct{}, out); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out.AsMap()["state"] != "empty" {
		t.Fatalf("unexpected view: %v", out.AsMap())
	}
}

func TestServerServesHTTPAndMetrics(t *testing.T) {
	srv := startTestServer(t, &stubService{})
	base := "http://" + srv.HTTPAddress()

	deadline := time.Now().Add(2 * time.Second)
	var resp *http.Response
	var err error
	for time.Now().Before(deadline) {
		resp, err = http.Get(base + "/healthz")
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}
}

func TestErrorKindMapping(t *testing.T) {
	cases := []struct {
		kind utils.ErrorKind
		http int
		grpc codes.Code
	}{
		{utils.KindInvalidInput, http.StatusBadRequest, codes.InvalidArgument},
		{utils.KindNotFound, http.StatusNotFound, codes.NotFound},
		{utils.KindConflict, http.StatusConflict, codes.Aborted},
		{utils.KindUnavailable, http.StatusServiceUnavailable, codes.Unavailable},
		{utils.KindInternal, http.StatusInternalServerError, codes.Internal},
	}
	for _, tc := range cases {
		err := fmt.Errorf("wrapped: %w", utils.NewKindError(tc.kind, "op", "msg", nil))
		if got := httpStatus(err); got != tc.http {
			t.Errorf("%s: http %d, want %d", tc.kind, got, tc.http)
		}
		if got := grpcCode(err); got != tc.grpc {
			t.Errorf("%s: grpc %s, want %s", tc.kind, got, tc.grpc)
		}
	}
}
