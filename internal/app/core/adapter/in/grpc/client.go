package grpc

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/JoeShih716/go-balance-ledger/internal/app/core/domain"
	pb "github.com/JoeShih716/go-balance-ledger/proto"
)

// SubmitResult SubmitTransaction 的回應
type SubmitResult struct {
	Success       bool
	Message       string
	ErrorCode     uint32
	TransactionID string
	Duplicate     bool
	Logs          []string
	Changed       []string
}

// AccountInfo GetAccount 的回應
type AccountInfo struct {
	Address    solana.PublicKey
	Owner      solana.PublicKey
	Lamports   uint64
	Executable bool
	Data       []byte
}

// BalanceInfo GetBalanceAccount 的回應
type BalanceInfo struct {
	Address        solana.PublicKey
	Bump           uint8
	CreditedAmount uint32
	DebitedAmount  uint32
	Balance        uint32
}

// Client 包裝 LedgerService，將 Struct 回應轉為具型別的結果
type Client struct {
	rpc pb.LedgerServiceClient
}

// NewClient 建立 Client
//
// 參數:
//
//	cc: gRPC 連線 (通常由 pkg/grpc.Pool 取得)
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{rpc: pb.NewLedgerServiceClient(cc)}
}

// SubmitTransaction 送出已簽名的交易
// 交易被拒絕時 error 為 nil，結果的 Success 為 false
func (c *Client) SubmitTransaction(ctx context.Context, tx *domain.Transaction) (*SubmitResult, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, err
	}
	resp, err := c.rpc.SubmitTransaction(ctx, wrapperspb.Bytes(raw))
	if err != nil {
		return nil, err
	}
	fields := resp.GetFields()
	return &SubmitResult{
		Success:       fields["success"].GetBoolValue(),
		Message:       fields["message"].GetStringValue(),
		ErrorCode:     uint32(fields["error_code"].GetNumberValue()),
		TransactionID: fields["transaction_id"].GetStringValue(),
		Duplicate:     fields["duplicate"].GetBoolValue(),
		Logs:          stringValues(fields["logs"]),
		Changed:       stringValues(fields["changed"]),
	}, nil
}

// GetAccount 查詢帳戶，不存在時回傳 domain.ErrAccountNotFound
func (c *Client) GetAccount(ctx context.Context, key solana.PublicKey) (*AccountInfo, error) {
	resp, err := c.rpc.GetAccount(ctx, wrapperspb.String(key.String()))
	if err != nil {
		return nil, notFound(err, key)
	}
	fields := resp.GetFields()

	owner, err := solana.PublicKeyFromBase58(fields["owner"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("decode owner: %w", err)
	}
	var data []byte
	if encoded := fields["data"].GetStringValue(); encoded != "" {
		if data, err = base58.Decode(encoded); err != nil {
			return nil, fmt.Errorf("decode data: %w", err)
		}
	}
	return &AccountInfo{
		Address:    key,
		Owner:      owner,
		Lamports:   uint64(fields["lamports"].GetNumberValue()),
		Executable: fields["executable"].GetBoolValue(),
		Data:       data,
	}, nil
}

// GetBalanceAccount 查詢使用者的餘額帳戶，尚未建立時回傳 domain.ErrAccountNotFound
func (c *Client) GetBalanceAccount(ctx context.Context, user solana.PublicKey) (*BalanceInfo, error) {
	resp, err := c.rpc.GetBalanceAccount(ctx, wrapperspb.String(user.String()))
	if err != nil {
		return nil, notFound(err, user)
	}
	fields := resp.GetFields()

	addr, err := solana.PublicKeyFromBase58(fields["address"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	return &BalanceInfo{
		Address:        addr,
		Bump:           uint8(fields["bump"].GetNumberValue()),
		CreditedAmount: uint32(fields["credited_amount"].GetNumberValue()),
		DebitedAmount:  uint32(fields["debited_amount"].GetNumberValue()),
		Balance:        uint32(fields["balance"].GetNumberValue()),
	}, nil
}

func notFound(err error, key solana.PublicKey) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, key)
	}
	return err
}

func stringValues(v *structpb.Value) []string {
	values := v.GetListValue().GetValues()
	out := make([]string, 0, len(values))
	for _, item := range values {
		out = append(out, item.GetStringValue())
	}
	return out
}
