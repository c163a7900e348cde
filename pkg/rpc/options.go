package rpc

import "google.golang.org/grpc"

// Option defines a functional option for configuring the RPC Server.
type Option func(s *Server)

// WithGRPCOptions configures the underlying grpc.Server with the provided options.
func WithGRPCOptions(opts ...grpc.ServerOption) Option {
	return func(s *Server) {
		s.grpcOptions = append(s.grpcOptions, opts...)
	}
}
