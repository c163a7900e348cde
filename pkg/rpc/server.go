// Package rpc hosts the gRPC server of a registered instance. Every server
// exposes the standard health service, which is also what callers probe
// through pooled channels.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/HorseArcher567/pathfinder/pkg/rpc/middleware"
	"github.com/HorseArcher567/pathfinder/pkg/xlog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server wraps a grpc.Server with health checking and lifecycle control.
type Server struct {
	config *ServerConfig
	log    *xlog.Logger

	grpcOptions  []grpc.ServerOption
	grpcServer   *grpc.Server
	healthServer *health.Server
	listener     net.Listener
}

// NewServer creates the server; it does not listen until Start.
func NewServer(log *xlog.Logger, cfg *ServerConfig, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("rpc: server config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rpc: invalid server config: %w", err)
	}
	if log == nil {
		log = xlog.Nop()
	}

	s := &Server{
		config:       cfg,
		log:          log.With("component", "rpc.server", "name", cfg.Name),
		healthServer: health.NewServer(),
	}
	for _, opt := range opts {
		opt(s)
	}

	grpcOpts := append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(middleware.UnaryServerLogging(s.log)),
		grpc.ChainStreamInterceptor(middleware.StreamServerLogging(s.log)),
	}, s.grpcOptions...)
	s.grpcServer = grpc.NewServer(grpcOpts...)

	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.healthServer)
	if cfg.EnableReflection {
		reflection.Register(s.grpcServer)
	}
	return s, nil
}

// MustNewServer is like NewServer but panics on error.
func MustNewServer(log *xlog.Logger, cfg *ServerConfig, opts ...Option) *Server {
	s, err := NewServer(log, cfg, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// RegisterServices registers business services on the underlying server.
// It must be called before Start.
func (s *Server) RegisterServices(register func(*grpc.Server)) {
	if register != nil {
		register(s.grpcServer)
	}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.config.ListenAddr())
	if err != nil {
		return fmt.Errorf("rpc: failed to listen on %s: %w", s.config.ListenAddr(), err)
	}
	s.listener = lis

	s.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	if s.config.Name != "" {
		s.healthServer.SetServingStatus(s.config.Name, grpc_health_v1.HealthCheckResponse_SERVING)
	}

	s.log.Info("starting rpc server", "addr", lis.Addr().String())
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.log.Error("rpc server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop marks the server as not serving and stops it gracefully. When ctx
// expires first, in-flight calls are cut off.
func (s *Server) Stop(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	s.healthServer.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("rpc server stopped")
		return nil
	case <-ctx.Done():
		s.grpcServer.Stop()
		s.log.Warn("rpc server stop timed out, forced")
		return ctx.Err()
	}
}
