package grpc

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/crewclock/internal/logging"
)

func newTestServer(buf *bytes.Buffer) *GRPCServer {
	return NewGRPCServer("", logging.NewJSON(buf, slog.LevelDebug))
}

func TestInterceptor_PassesThrough(t *testing.T) {
	var buf bytes.Buffer
	s := newTestServer(&buf)

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	}

	resp, err := s.loggingInterceptor(context.Background(), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
	if !strings.Contains(buf.String(), `"level":"DEBUG"`) || !strings.Contains(buf.String(), "Health/Check") {
		t.Fatalf("call not logged: %s", buf.String())
	}
}

func TestInterceptor_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	s := newTestServer(&buf)

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.Internal, "boom")
	}

	_, err := s.loggingInterceptor(context.Background(), nil, info, h)
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", status.Code(err))
	}
	if !strings.Contains(buf.String(), `"level":"WARN"`) {
		t.Fatalf("failure not logged as warning: %s", buf.String())
	}
}

func TestInterceptor_UnknownServiceIsNotAWarning(t *testing.T) {
	var buf bytes.Buffer
	s := newTestServer(&buf)

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	}

	_, _ = s.loggingInterceptor(context.Background(), nil, info, h)
	if strings.Contains(buf.String(), `"level":"WARN"`) {
		t.Fatalf("unexpected warning: %s", buf.String())
	}
}
