// Package middleware provides gRPC logging interceptors built on xlog.
package middleware

import (
	"context"
	"time"

	"github.com/HorseArcher567/pathfinder/pkg/xlog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryServerLogging logs every unary call and stores a call-scoped logger
// in the handler context.
func UnaryServerLogging(base *xlog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		log := base.With("method", info.FullMethod)
		if requestID := extractRequestID(ctx); requestID != "" {
			log = log.With("request_id", requestID)
		}

		resp, err := handler(xlog.WithContext(ctx, log), req)

		duration := time.Since(start)
		if err != nil {
			st := status.Convert(err)
			log.Error("grpc request failed",
				"duration", duration,
				"code", st.Code().String(),
				"error", st.Message(),
			)
		} else {
			log.Debug("grpc request completed", "duration", duration)
		}
		return resp, err
	}
}

// StreamServerLogging is the streaming counterpart of UnaryServerLogging.
func StreamServerLogging(base *xlog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		ctx := ss.Context()

		log := base.With("method", info.FullMethod)
		if requestID := extractRequestID(ctx); requestID != "" {
			log = log.With("request_id", requestID)
		}

		err := handler(srv, &loggingServerStream{
			ServerStream: ss,
			ctx:          xlog.WithContext(ctx, log),
		})

		duration := time.Since(start)
		if err != nil {
			st := status.Convert(err)
			log.Error("grpc stream failed",
				"duration", duration,
				"code", st.Code().String(),
				"error", st.Message(),
			)
		} else {
			log.Debug("grpc stream completed", "duration", duration)
		}
		return err
	}
}

// UnaryClientLogging logs failed client calls at error level and successful
// ones at debug level. Cancelled calls are not reported.
func UnaryClientLogging(log *xlog.Logger) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		duration := time.Since(start)

		if err != nil {
			st := status.Convert(err)
			if st.Code() != codes.Canceled {
				log.Error("grpc client request failed",
					"method", method,
					"target", cc.Target(),
					"duration", duration,
					"code", st.Code().String(),
					"error", st.Message(),
				)
			}
			return err
		}

		log.Debug("grpc client request completed",
			"method", method,
			"target", cc.Target(),
			"duration", duration,
		)
		return nil
	}
}

// extractRequestID 从 gRPC metadata 中提取 request_id
func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("x-request-id"); len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

type loggingServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *loggingServerStream) Context() context.Context {
	return s.ctx
}
