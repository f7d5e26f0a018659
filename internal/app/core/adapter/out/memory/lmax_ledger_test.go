package memory_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-balance-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-balance-ledger/internal/app/core/domain"
	programdomain "github.com/JoeShih716/go-balance-ledger/internal/app/program/domain"
	"github.com/JoeShih716/go-balance-ledger/pkg/wal"
)

func startLMAX(t *testing.T, f *fixture, w *wal.WAL) *memory.LMAXLedger {
	t.Helper()
	ledger, err := memory.NewLMAXLedger(f.executor, f.genesis, w)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	ledger.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-ledger.Done()
	})
	return ledger
}

func TestLMAXLedger_Scenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	ledger := startLMAX(t, f, nil)

	_, err := ledger.ProcessTransaction(ctx, f.provisionTx(t))
	require.NoError(t, err)
	_, err = ledger.ProcessTransaction(ctx, f.creditTx(t, 100))
	require.NoError(t, err)
	_, err = ledger.ProcessTransaction(ctx, f.debitTx(t, 40))
	require.NoError(t, err)
	_, err = ledger.ProcessTransaction(ctx, f.debitTx(t, 1000))
	assert.ErrorIs(t, err, programdomain.ErrInsufficientFunds)

	// a second provision fails because the account is already in use
	_, err = ledger.ProcessTransaction(ctx, f.provisionTx(t))
	assert.ErrorIs(t, err, programdomain.ErrProvisionFailed)

	snap, err := ledger.GetAccount(ctx, f.balanceAddress(t))
	require.NoError(t, err)
	assert.Equal(t, programdomain.BalanceAccount{CreditedAmount: 100, DebitedAmount: 40, Balance: 60}, decodeRecord(t, snap))
}

func TestLMAXLedger_ConcurrentSubmitters(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	ledger := startLMAX(t, f, nil)
	_, err := ledger.ProcessTransaction(ctx, f.provisionTx(t))
	require.NoError(t, err)

	const workers = 40
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		tx := f.creditTx(t, 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.ProcessTransaction(ctx, tx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := ledger.GetAccount(ctx, f.balanceAddress(t))
	require.NoError(t, err)
	assert.Equal(t, uint32(workers), decodeRecord(t, snap).Balance)
}

func TestLMAXLedger_ClosedLedgerRejects(t *testing.T) {
	f := newFixture()
	ledger, err := memory.NewLMAXLedger(f.executor, f.genesis, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	ledger.Start(ctx)
	cancel()
	<-ledger.Done()

	_, err = ledger.ProcessTransaction(context.Background(), f.provisionTx(t))
	assert.ErrorIs(t, err, domain.ErrLedgerClosed)
}

func TestLMAXLedger_RecoverFromWAL(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	path := filepath.Join(t.TempDir(), "wal.log")

	w, err := wal.NewWAL(path)
	require.NoError(t, err)
	ledger, err := memory.NewLMAXLedger(f.executor, f.genesis, w)
	require.NoError(t, err)
	runCtx, cancel := context.WithCancel(ctx)
	ledger.Start(runCtx)

	_, err = ledger.ProcessTransaction(ctx, f.provisionTx(t))
	require.NoError(t, err)
	_, err = ledger.ProcessTransaction(ctx, f.creditTx(t, 9))
	require.NoError(t, err)
	cancel()
	<-ledger.Done()
	require.NoError(t, w.Close())

	reopened, err := wal.NewWAL(path)
	require.NoError(t, err)
	defer reopened.Close()

	// the mutex ledger replays a log written by the lmax ledger
	recovered, err := memory.NewMutexLedger(f.executor, f.genesis, reopened)
	require.NoError(t, err)
	snap, err := recovered.GetAccount(ctx, f.balanceAddress(t))
	require.NoError(t, err)
	assert.Equal(t, uint32(9), decodeRecord(t, snap).Balance)
}
