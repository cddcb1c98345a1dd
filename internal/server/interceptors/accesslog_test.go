package interceptors

import (
	"bytes"
	"context"
	"log"
	"net"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	accountdomain "health-portal/backend/internal/account/domain"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestAccessLogUnary(t *testing.T) {
	buf := captureLog(t)
	interceptor := AccessLogUnary(map[string]bool{"/grpc.health.v1.Health/Check": true})

	ctx := WithAccount(context.Background(), accountdomain.PublicAccount{ID: "acc-9"})
	ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("x-real-ip", "10.1.2.3"))
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: methodMe}, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "missing")
	})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("handler error should pass through, got %v", err)
	}
	line := buf.String()
	for _, want := range []string{methodMe, "code=NotFound", "account=acc-9", "ip=10.1.2.3"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}

	buf.Reset()
	_, _ = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, func(ctx context.Context, req any) (any, error) {
		return nil, nil
	})
	if buf.Len() != 0 {
		t.Errorf("skipped method was logged: %q", buf.String())
	}
}

func TestAccessLogUnary_AnonymousRequest(t *testing.T) {
	buf := captureLog(t)
	_, _ = AccessLogUnary(nil)(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: methodLogin}, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	if line := buf.String(); !strings.Contains(line, "account=-") || !strings.Contains(line, "code=OK") {
		t.Errorf("log line = %q", line)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"empty context", context.Background(), "unknown"},
		{"x-forwarded-for single", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-forwarded-for", "192.168.1.1")), "192.168.1.1"},
		{"x-forwarded-for list", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-forwarded-for", " 203.0.113.5 , 10.0.0.1")), "203.0.113.5"},
		{"x-real-ip", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-real-ip", "172.16.0.1")), "172.16.0.1"},
		{"x-forwarded-for wins over x-real-ip", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-forwarded-for", "1.1.1.1", "x-real-ip", "2.2.2.2")), "1.1.1.1"},
		{"peer address", peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5555}}), "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClientIP(tt.ctx); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
