package grpc

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/JoeShih716/go-balance-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-balance-ledger/internal/app/core/usecase"
	programdomain "github.com/JoeShih716/go-balance-ledger/internal/app/program/domain"
	pb "github.com/JoeShih716/go-balance-ledger/proto"
)

type GrpcServer struct {
	pb.UnimplementedLedgerServiceServer
	core *usecase.CoreUseCase
}

func NewGrpcServer(core *usecase.CoreUseCase) *GrpcServer {
	return &GrpcServer{
		core: core,
	}
}

func (s *GrpcServer) SubmitTransaction(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	// 1. 解碼交易
	tx, err := domain.DecodeTransaction(req.GetValue())
	if err != nil {
		return newStruct(map[string]any{
			"success": false,
			"message": err.Error(),
		})
	}

	// 2. 執行交易
	receipt, err := s.core.PostTransaction(ctx, tx)

	resp := map[string]any{
		"success":        err == nil,
		"transaction_id": tx.ID.String(),
	}
	if receipt != nil {
		resp["duplicate"] = receipt.Duplicate
		resp["logs"] = stringList(receipt.Logs)
		changed := make([]string, 0, len(receipt.Changed))
		for _, key := range receipt.Changed {
			changed = append(changed, key.String())
		}
		resp["changed"] = stringList(changed)
	}
	if err != nil {
		// 業務邏輯錯誤，回傳 success=false (Soft Failure)
		resp["message"] = err.Error()
		resp["error_code"] = programdomain.ErrorCode(err)
	}
	return newStruct(resp)
}

func (s *GrpcServer) GetAccount(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	key, err := solana.PublicKeyFromBase58(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid address: "+err.Error())
	}

	acc, err := s.core.GetAccount(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	return newStruct(map[string]any{
		"address":    acc.Key.String(),
		"owner":      acc.Owner.String(),
		"lamports":   acc.Lamports,
		"executable": acc.Executable,
		"data":       base58.Encode(acc.Data),
	})
}

func (s *GrpcServer) GetBalanceAccount(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	user, err := solana.PublicKeyFromBase58(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid address: "+err.Error())
	}

	view, err := s.core.GetBalanceAccount(ctx, user)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAccountNotFound):
			return nil, status.Error(codes.NotFound, err.Error())
		case errors.Is(err, programdomain.ErrOwnership), errors.Is(err, programdomain.ErrInvalidAccountData):
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		default:
			return nil, status.Error(codes.Internal, err.Error())
		}
	}

	return newStruct(map[string]any{
		"address":         view.Address.String(),
		"bump":            uint32(view.Bump),
		"credited_amount": view.Record.CreditedAmount,
		"debited_amount":  view.Record.DebitedAmount,
		"balance":         view.Record.Balance,
	})
}

// newStruct 欄位型別都由本檔決定，轉換失敗代表程式錯誤
func newStruct(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

func stringList(items []string) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
