package e2e

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"predictd/internal/engine"
	"predictd/internal/httpapi"
	"predictd/internal/rpc"
	"predictd/internal/service"
	"predictd/pkg/client"
)

type stack struct {
	addr   string
	engine *engine.Instrumented
	client *client.Client
}

// startStack runs the full server (gRPC plus ops HTTP on one TCP port) over
// eng and returns a connected client.
func startStack(t *testing.T, eng engine.Engine, opts ...client.Option) *stack {
	t.Helper()
	inst := engine.Instrument(eng)
	svc, err := service.New(service.Config{Engine: inst})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	srv := rpc.NewServer(svc, rpc.ServerConfig{Policy: rpc.DefaultPolicy(), HTTPHandler: httpapi.NewMux(svc)})
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(lis) }()

	c, err := client.New(lis.Addr().String(), opts...)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
		if err := <-errc; err != nil {
			t.Errorf("serve: %v", err)
		}
	})
	return &stack{addr: lis.Addr().String(), engine: inst, client: c}
}

func (s *stack) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + s.addr + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
