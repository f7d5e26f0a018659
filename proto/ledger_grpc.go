package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	LedgerService_SubmitTransaction_FullMethodName = "/balance.v1.LedgerService/SubmitTransaction"
	LedgerService_GetAccount_FullMethodName        = "/balance.v1.LedgerService/GetAccount"
	LedgerService_GetBalanceAccount_FullMethodName = "/balance.v1.LedgerService/GetBalanceAccount"
)

// LedgerServiceClient 見 ledger.proto
type LedgerServiceClient interface {
	SubmitTransaction(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetAccount(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetBalanceAccount(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type ledgerServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerServiceClient(cc grpc.ClientConnInterface) LedgerServiceClient {
	return &ledgerServiceClient{cc}
}

func (c *ledgerServiceClient) SubmitTransaction(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, LedgerService_SubmitTransaction_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) GetAccount(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, LedgerService_GetAccount_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) GetBalanceAccount(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, LedgerService_GetBalanceAccount_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// LedgerServiceServer 見 ledger.proto
type LedgerServiceServer interface {
	SubmitTransaction(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
	GetAccount(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetBalanceAccount(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// UnimplementedLedgerServiceServer 嵌入後未實作的方法回傳 Unimplemented
type UnimplementedLedgerServiceServer struct{}

func (UnimplementedLedgerServiceServer) SubmitTransaction(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SubmitTransaction not implemented")
}

func (UnimplementedLedgerServiceServer) GetAccount(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetAccount not implemented")
}

func (UnimplementedLedgerServiceServer) GetBalanceAccount(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetBalanceAccount not implemented")
}

func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&LedgerService_ServiceDesc, srv)
}

func _LedgerService_SubmitTransaction_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).SubmitTransaction(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_SubmitTransaction_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServiceServer).SubmitTransaction(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_GetAccount_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).GetAccount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_GetAccount_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServiceServer).GetAccount(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_GetBalanceAccount_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).GetBalanceAccount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_GetBalanceAccount_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServiceServer).GetBalanceAccount(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// LedgerService_ServiceDesc balance.v1.LedgerService 的描述
var LedgerService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "balance.v1.LedgerService",
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SubmitTransaction",
			Handler:    _LedgerService_SubmitTransaction_Handler,
		},
		{
			MethodName: "GetAccount",
			Handler:    _LedgerService_GetAccount_Handler,
		},
		{
			MethodName: "GetBalanceAccount",
			Handler:    _LedgerService_GetBalanceAccount_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "proto/ledger.proto",
}
