package api

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"github.com/miradorstack/mirador-selfheal/internal/models"
)

type stubSelfHeal struct{}

func (stubSelfHeal) Detect(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	obs, err := FromStructDetectRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	results := make([]models.Result, 0, len(obs))
	for _, o := range obs {
		results = append(results, models.NewPointResult(models.PointResult{CPUMilli: o.CPU, MemoryMiB: o.Memory, Type: models.LabelNormal}))
	}
	return ToStructDetectResponse(results)
}

func (stubSelfHeal) ModelInfo(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return ToStructModelInfo(models.ModelInfo{Status: "real", Ready: true, SeqLen: 10})
}

type panickingSelfHeal struct{ stubSelfHeal }

func (panickingSelfHeal) Detect(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	panic("boom")
}

func dialBufconn(t *testing.T, ready bool) *grpc.ClientConn {
	t.Helper()
	return dialService(t, stubSelfHeal{}, ready)
}

func dialService(t *testing.T, service SelfHealServer, ready bool) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := NewServerOnListener(slog.New(slog.NewTextHandler(io.Discard, nil)), lis, service, ready)
	go func() { _ = server.Start() }()
	t.Cleanup(func() { server.Shutdown(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGRPCDetectRoundTrip(t *testing.T) {
	client := NewSelfHealClient(dialBufconn(t, true))

	req, err := structpb.NewStruct(map[string]any{
		"values": []any{map[string]any{"cpu": 500.0, "memory": 800.0}},
	})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := client.Detect(context.Background(), req)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	results := resp.GetFields()["results"].GetListValue().GetValues()
	if len(results) != 1 {
		t.Fatalf("expected one result, got %v", resp)
	}
	if cpu := results[0].GetStructValue().GetFields()["cpu_milli"].GetNumberValue(); cpu != 500 {
		t.Fatalf("unexpected cpu_milli %v", cpu)
	}

	info, err := client.ModelInfo(context.Background(), &structpb.Struct{})
	if err != nil {
		t.Fatalf("model info: %v", err)
	}
	if info.GetFields()["status"].GetStringValue() != "real" {
		t.Fatalf("unexpected model info %v", info)
	}
}

func TestGRPCInvalidArgument(t *testing.T) {
	client := NewSelfHealClient(dialBufconn(t, true))
	req, _ := structpb.NewStruct(map[string]any{"values": []any{map[string]any{"cpu": 1.0}}})
	if _, err := client.Detect(context.Background(), req); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestGRPCHealthReflectsReadiness(t *testing.T) {
	health := healthpb.NewHealthClient(dialBufconn(t, false))

	resp, err := health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected overall SERVING, got %v, %v", resp, err)
	}
	resp, err = health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: SelfHealServiceName})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected service NOT_SERVING while degraded, got %v, %v", resp, err)
	}
}

func TestGRPCRecoversFromPanic(t *testing.T) {
	client := NewSelfHealClient(dialService(t, panickingSelfHeal{}, true))
	req, _ := structpb.NewStruct(map[string]any{"values": []any{map[string]any{"cpu": 1.0, "memory": 2.0}}})
	if _, err := client.Detect(context.Background(), req); status.Code(err) != codes.Internal {
		t.Fatalf("expected internal error after panic, got %v", err)
	}
	if _, err := client.ModelInfo(context.Background(), &structpb.Struct{}); err != nil {
		t.Fatalf("server should keep serving after a panic: %v", err)
	}
}

func TestFromStructDetectRequestNil(t *testing.T) {
	if _, err := FromStructDetectRequest(nil); err == nil {
		t.Fatalf("expected error for nil request")
	}
}
