package grpc

import (
	"context"
	"path"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-balance-ledger/pkg/metrics"
)

// NewServer 建立帶有 recovery、logging 與指標攔截器的 gRPC Server
//
// 參數:
//
//	logger: 請求日誌
//	m: 指標，nil 時不記錄
//	opts: 額外的 ServerOption
func NewServer(logger zerolog.Logger, m *metrics.Metrics, opts ...grpc.ServerOption) *grpc.Server {
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			UnaryServerInterceptor(logger, m),
			RecoveryInterceptor(logger),
		),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second, // 配合 Pool 的 10 秒 Ping
			PermitWithoutStream: true,
		}),
	}
	return grpc.NewServer(append(serverOpts, opts...)...)
}

// UnaryServerInterceptor 記錄每個請求的耗時與狀態碼
func UnaryServerInterceptor(logger zerolog.Logger, m *metrics.Metrics) grpc.UnaryServerInterceptor {
	if m == nil {
		m = metrics.NewNop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		m.RPCRequests.WithLabelValues(path.Base(info.FullMethod), code.String()).Inc()

		event := logger.Debug()
		if code == codes.Internal || code == codes.Unknown {
			event = logger.Error()
		}
		event.
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("elapsed", time.Since(start)).
			Err(err).
			Msg("rpc handled")
		return resp, err
	}
}

// RecoveryInterceptor 將 handler 的 panic 轉為 codes.Internal
func RecoveryInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().
					Str("method", info.FullMethod).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("rpc handler panicked")
				err = status.Errorf(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// UnaryClientInterceptor 客戶端的請求日誌，搭配 WithInterceptor 使用
func UnaryClientInterceptor(logger zerolog.Logger) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		logger.Debug().
			Str("method", method).
			Str("target", cc.Target()).
			Str("code", status.Code(err).String()).
			Dur("elapsed", time.Since(start)).
			Err(err).
			Msg("rpc call")
		return err
	}
}
