// Package rpc exposes the service over gRPC.
//
// The service descriptor is declared by hand (desc.go) and messages are the
// plain structs in pkg/types, carried by a JSON codec that is installed on
// this server only (codec.go). When an HTTP handler is configured the same
// listener also serves HTTP/1 via cmux, so health and metrics live on the
// RPC port.
package rpc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"

	"predictd/pkg/types"
)

// Runner is the operation served by the RPC layer.
type Runner interface {
	RunModel(ctx context.Context, req types.RunModelRequest) (types.RunModelResponse, error)
}

// ServerConfig holds the transport settings fixed at startup.
type ServerConfig struct {
	Policy Policy
	Logger *zerolog.Logger
	// HTTPHandler, when set, serves HTTP/1 connections on the RPC listener.
	HTTPHandler http.Handler
}

type Server struct {
	grpc    *grpc.Server
	http    *http.Server
	log     zerolog.Logger
	mu      sync.Mutex
	mux     cmux.CMux
	closing atomic.Bool
}

type predictorHandler struct{ runner Runner }

func (h predictorHandler) RunModel(ctx context.Context, req *types.RunModelRequest) (*types.RunModelResponse, error) {
	resp, err := h.runner.RunModel(ctx, *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return &resp, nil
}

// NewServer builds a gRPC server for r with cfg's serialization policy.
func NewServer(r Runner, cfg ServerConfig) *Server {
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "rpc").Logger()
	}
	opts := append(cfg.Policy.ServerOptions(),
		grpc.ChainUnaryInterceptor(
			LoggingInterceptor(log),
			MetricsInterceptor,
			RecoveryInterceptor(log),
		),
	)
	gs := grpc.NewServer(opts...)
	RegisterPredictorServer(gs, predictorHandler{runner: r})

	s := &Server{grpc: gs, log: log}
	if cfg.HTTPHandler != nil {
		s.http = &http.Server{Handler: cfg.HTTPHandler, ReadHeaderTimeout: 5 * time.Second}
	}
	return s
}

// GRPC exposes the underlying server for additional registrations.
func (s *Server) GRPC() *grpc.Server { return s.grpc }

// Serve accepts connections on lis until Shutdown. It returns nil after a
// requested shutdown and the first serving error otherwise.
func (s *Server) Serve(lis net.Listener) error {
	if s.http == nil {
		err := s.grpc.Serve(lis)
		if s.closing.Load() {
			return nil
		}
		return err
	}

	m := cmux.New(lis)
	httpL := m.Match(cmux.HTTP1Fast())
	grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldPrefixSendSettings("content-type", "application/grpc"))
	s.mu.Lock()
	s.mux = m
	s.mu.Unlock()

	errc := make(chan error, 3)
	go func() { errc <- s.grpc.Serve(grpcL) }()
	go func() { errc <- s.http.Serve(httpL) }()
	go func() { errc <- m.Serve() }()

	s.log.Info().Str("addr", lis.Addr().String()).Msg("serving grpc and http")
	err := <-errc
	if s.closing.Load() || errors.Is(err, http.ErrServerClosed) || errors.Is(err, cmux.ErrListenerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting calls and waits for in-flight calls to finish or
// ctx to expire, whichever comes first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
		if err == nil {
			err = ctx.Err()
		}
	}
	s.mu.Lock()
	if s.mux != nil {
		s.mux.Close()
	}
	s.mu.Unlock()
	return err
}
