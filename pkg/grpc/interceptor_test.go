package grpc_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	grpcpkg "github.com/JoeShih716/go-balance-ledger/pkg/grpc"
	"github.com/JoeShih716/go-balance-ledger/pkg/logger"
	"github.com/JoeShih716/go-balance-ledger/pkg/metrics"
)

const echoMethod = "/test.Echo/Echo"

type echoServer interface {
	Echo(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

type echoImpl struct{}

func (echoImpl) Echo(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if in.GetValue() == "panic" {
		panic("boom")
	}
	return in, nil
}

var echoDesc = grpc.ServiceDesc{
	ServiceName: "test.Echo",
	HandlerType: (*echoServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Echo",
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(wrapperspb.StringValue)
			if err := dec(in); err != nil {
				return nil, err
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: echoMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return srv.(echoServer).Echo(ctx, req.(*wrapperspb.StringValue))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			return interceptor(ctx, in, info, handler)
		},
	}},
}

type bufServer struct {
	lis *bufconn.Listener
}

func (b *bufServer) dial(ctx context.Context, _ string) (net.Conn, error) {
	return b.lis.DialContext(ctx)
}

func startEcho(t *testing.T, srv *grpc.Server) *bufServer {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv.RegisterService(&echoDesc, echoImpl{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return &bufServer{lis: lis}
}

func echo(ctx context.Context, conn grpc.ClientConnInterface, msg string) (string, error) {
	out := new(wrapperspb.StringValue)
	err := conn.Invoke(ctx, echoMethod, wrapperspb.String(msg), out)
	return out.GetValue(), err
}

func discard() zerolog.Logger {
	return logger.NewWithWriter(io.Discard, "test", "error")
}

func TestUnaryServerInterceptor_CountsByCode(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	intercept := grpcpkg.UnaryServerInterceptor(discard(), m)
	info := &grpc.UnaryServerInfo{FullMethod: "/balance.v1.LedgerService/GetAccount"}

	_, err := intercept(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "missing")
	})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = intercept(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCRequests.WithLabelValues("GetAccount", "NotFound")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCRequests.WithLabelValues("GetAccount", "OK")))
}

func TestUnaryServerInterceptor_LogsInternalErrors(t *testing.T) {
	var buf bytes.Buffer
	intercept := grpcpkg.UnaryServerInterceptor(logger.NewWithWriter(&buf, "rpc", "error"), nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/balance.v1.LedgerService/SubmitTransaction"}

	_, _ = intercept(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "missing")
	})
	assert.Empty(t, buf.String(), "NotFound is logged at debug")

	_, _ = intercept(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.Internal, "disk on fire")
	})
	assert.Contains(t, buf.String(), "disk on fire")
	assert.Contains(t, buf.String(), `"method":"/balance.v1.LedgerService/SubmitTransaction"`)
}

func TestNewServer_RecoversPanics(t *testing.T) {
	srv := startEcho(t, grpcpkg.NewServer(discard(), nil))

	pool := grpcpkg.NewPool(grpcpkg.WithInterceptor(grpcpkg.UnaryClientInterceptor(discard())))
	defer pool.Close()
	conn, err := pool.GetConnection("passthrough:///bufnet", grpc.WithContextDialer(srv.dial))
	require.NoError(t, err)

	_, err = echo(context.Background(), conn, "panic")
	assert.Equal(t, codes.Internal, status.Code(err))

	got, err := echo(context.Background(), conn, "still alive")
	require.NoError(t, err)
	assert.Equal(t, "still alive", got)
}
