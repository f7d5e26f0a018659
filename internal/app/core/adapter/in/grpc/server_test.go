package grpc_test

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	grpc_adapter "github.com/JoeShih716/go-balance-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-balance-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-balance-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-balance-ledger/internal/app/core/runtime"
	coreusecase "github.com/JoeShih716/go-balance-ledger/internal/app/core/usecase"
	programdomain "github.com/JoeShih716/go-balance-ledger/internal/app/program/domain"
	"github.com/JoeShih716/go-balance-ledger/internal/app/program/usecase"
	grpcpkg "github.com/JoeShih716/go-balance-ledger/pkg/grpc"
	"github.com/JoeShih716/go-balance-ledger/pkg/logger"
	pb "github.com/JoeShih716/go-balance-ledger/proto"
)

type node struct {
	programID solana.PublicKey
	user      solana.PrivateKey
	client    *grpc_adapter.Client
	raw       pb.LedgerServiceClient
}

func startNode(t *testing.T) *node {
	t.Helper()
	log := logger.NewWithWriter(io.Discard, "test", "error")
	programID := solana.NewWallet().PublicKey()
	user := solana.NewWallet().PrivateKey

	executor := runtime.NewExecutor(runtime.WithProgram(programID, usecase.NewBalanceProgram()))
	ledger, err := memory.NewMutexLedger(executor, map[solana.PublicKey]*domain.AccountSnapshot{
		user.PublicKey(): {Key: user.PublicKey(), Owner: solana.SystemProgramID, Lamports: 1_000_000_000},
	}, nil)
	require.NoError(t, err)
	core := coreusecase.NewCoreUseCase(ledger, "mutex", programID, log, nil)

	lis := bufconn.Listen(1 << 20)
	srv := grpcpkg.NewServer(log, nil)
	pb.RegisterLedgerServiceServer(srv, grpc_adapter.NewGrpcServer(core))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	pool := grpcpkg.NewPool()
	t.Cleanup(func() { _ = pool.Close() })
	conn, err := pool.GetConnection("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)

	return &node{
		programID: programID,
		user:      user,
		client:    grpc_adapter.NewClient(conn),
		raw:       pb.NewLedgerServiceClient(conn),
	}
}

func (n *node) submit(t *testing.T, ix solana.Instruction, signers ...solana.PrivateKey) *grpc_adapter.SubmitResult {
	t.Helper()
	hostIx, err := domain.NewInstruction(ix)
	require.NoError(t, err)
	tx := domain.NewTransaction(hostIx)
	require.NoError(t, tx.Sign(signers...))
	res, err := n.client.SubmitTransaction(context.Background(), tx)
	require.NoError(t, err)
	return res
}

func TestGrpcServer_Scenario(t *testing.T) {
	ctx := context.Background()
	n := startNode(t)
	userKey := n.user.PublicKey()

	_, err := n.client.GetBalanceAccount(ctx, userKey)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	ix, err := programdomain.NewProvisionInstruction(n.programID, userKey)
	require.NoError(t, err)
	res := n.submit(t, ix, n.user)
	require.True(t, res.Success, res.Message)
	assert.Len(t, res.Changed, 2)
	assert.NotEmpty(t, res.Logs)

	ix, err = programdomain.NewCreditInstruction(n.programID, userKey, 100)
	require.NoError(t, err)
	res = n.submit(t, ix)
	require.True(t, res.Success, res.Message)
	assert.Contains(t, res.Logs, "Program log: Credited 100 to the balance, new balance: 100")

	ix, err = programdomain.NewDebitInstruction(n.programID, userKey, 40)
	require.NoError(t, err)
	require.True(t, n.submit(t, ix).Success)

	// 餘額不足: soft failure，帶回錯誤碼與日誌
	ix, err = programdomain.NewDebitInstruction(n.programID, userKey, 1000)
	require.NoError(t, err)
	res = n.submit(t, ix)
	assert.False(t, res.Success)
	assert.Equal(t, programdomain.ErrorCode(programdomain.ErrInsufficientFunds), res.ErrorCode)
	assert.Contains(t, res.Logs, "Program log: Insufficient funds for debit")

	balance, err := n.client.GetBalanceAccount(ctx, userKey)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), balance.CreditedAmount)
	assert.Equal(t, uint32(40), balance.DebitedAmount)
	assert.Equal(t, uint32(60), balance.Balance)

	want, bump, err := programdomain.FindBalanceAddress(n.programID, userKey)
	require.NoError(t, err)
	assert.Equal(t, want, balance.Address)
	assert.Equal(t, bump, balance.Bump)

	acc, err := n.client.GetAccount(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, n.programID, acc.Owner)
	assert.Len(t, acc.Data, programdomain.BalanceAccountSize)
	assert.Equal(t, uint64(974400), acc.Lamports)
}

func TestGrpcServer_DuplicateSubmission(t *testing.T) {
	n := startNode(t)
	ix, err := programdomain.NewProvisionInstruction(n.programID, n.user.PublicKey())
	require.NoError(t, err)
	hostIx, err := domain.NewInstruction(ix)
	require.NoError(t, err)
	tx := domain.NewTransaction(hostIx)
	require.NoError(t, tx.Sign(n.user))

	first, err := n.client.SubmitTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := n.client.SubmitTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.True(t, second.Duplicate)
	assert.Equal(t, tx.ID.String(), second.TransactionID)
}

func TestGrpcServer_MalformedTransaction(t *testing.T) {
	n := startNode(t)
	resp, err := n.raw.SubmitTransaction(context.Background(), wrapperspb.Bytes([]byte{1, 2, 3}))
	require.NoError(t, err)
	assert.False(t, resp.GetFields()["success"].GetBoolValue())
	assert.NotEmpty(t, resp.GetFields()["message"].GetStringValue())
}

func TestGrpcServer_UnsignedProvisionRejected(t *testing.T) {
	n := startNode(t)
	ix, err := programdomain.NewProvisionInstruction(n.programID, n.user.PublicKey())
	require.NoError(t, err)

	res := n.submit(t, ix)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, domain.ErrMissingSignature.Error())
}

func TestGrpcServer_InvalidAddress(t *testing.T) {
	n := startNode(t)
	_, err := n.raw.GetAccount(context.Background(), wrapperspb.String("not-base58!"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = n.raw.GetBalanceAccount(context.Background(), wrapperspb.String(""))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGrpcServer_GetAccount(t *testing.T) {
	n := startNode(t)
	_, err := n.client.GetAccount(context.Background(), solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	acc, err := n.client.GetAccount(context.Background(), n.user.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, solana.SystemProgramID, acc.Owner)
	assert.Empty(t, acc.Data)
}
