package memory_test

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-balance-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-balance-ledger/internal/app/core/runtime"
	programdomain "github.com/JoeShih716/go-balance-ledger/internal/app/program/domain"
	"github.com/JoeShih716/go-balance-ledger/internal/app/program/usecase"
)

const startingLamports = 1_000_000_000

type fixture struct {
	programID solana.PublicKey
	executor  *runtime.Executor
	user      solana.PrivateKey
	genesis   map[solana.PublicKey]*domain.AccountSnapshot
}

func newFixture() *fixture {
	programID := solana.NewWallet().PublicKey()
	user := solana.NewWallet().PrivateKey
	return &fixture{
		programID: programID,
		executor:  runtime.NewExecutor(runtime.WithProgram(programID, usecase.NewBalanceProgram())),
		user:      user,
		genesis: map[solana.PublicKey]*domain.AccountSnapshot{
			user.PublicKey(): {Key: user.PublicKey(), Owner: solana.SystemProgramID, Lamports: startingLamports},
		},
	}
}

func (f *fixture) provisionTx(t *testing.T) *domain.Transaction {
	t.Helper()
	ix, err := programdomain.NewProvisionInstruction(f.programID, f.user.PublicKey())
	require.NoError(t, err)
	tx := f.tx(t, ix)
	require.NoError(t, tx.Sign(f.user))
	return tx
}

func (f *fixture) creditTx(t *testing.T, amount uint32) *domain.Transaction {
	t.Helper()
	ix, err := programdomain.NewCreditInstruction(f.programID, f.user.PublicKey(), amount)
	require.NoError(t, err)
	return f.tx(t, ix)
}

func (f *fixture) debitTx(t *testing.T, amount uint32) *domain.Transaction {
	t.Helper()
	ix, err := programdomain.NewDebitInstruction(f.programID, f.user.PublicKey(), amount)
	require.NoError(t, err)
	return f.tx(t, ix)
}

func (f *fixture) tx(t *testing.T, ix solana.Instruction) *domain.Transaction {
	t.Helper()
	hostIx, err := domain.NewInstruction(ix)
	require.NoError(t, err)
	return domain.NewTransaction(hostIx)
}

func (f *fixture) balanceAddress(t *testing.T) solana.PublicKey {
	t.Helper()
	addr, _, err := programdomain.FindBalanceAddress(f.programID, f.user.PublicKey())
	require.NoError(t, err)
	return addr
}

func decodeRecord(t *testing.T, snap *domain.AccountSnapshot) programdomain.BalanceAccount {
	t.Helper()
	record, err := programdomain.DecodeBalanceAccount(snap.Data)
	require.NoError(t, err)
	return record
}
