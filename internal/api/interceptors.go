package api

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// RPCObserver counts finished calls.
type RPCObserver interface {
	RPC(method, code string)
}

// UnaryInterceptor logs every unary call and reports its status code.
func UnaryInterceptor(logger *zap.Logger, observer RPCObserver) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		if observer != nil {
			observer.RPC(info.FullMethod, code.String())
		}
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("took", time.Since(start)),
		}
		if err != nil {
			logger.Debug("rpc failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("rpc", fields...)
		}
		return resp, err
	}
}

// StreamInterceptor reports the status code of every finished stream.
func StreamInterceptor(logger *zap.Logger, observer RPCObserver) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		err := handler(srv, ss)
		code := status.Code(err)
		if observer != nil {
			observer.RPC(info.FullMethod, code.String())
		}
		logger.Debug("stream closed", zap.String("method", info.FullMethod), zap.String("code", code.String()))
		return err
	}
}
