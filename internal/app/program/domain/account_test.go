package domain_test

import (
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-balance-ledger/internal/app/program/domain"
)

func TestAccount_BorrowCommit(t *testing.T) {
	acc := domain.NewAccount(solana.NewWallet().PublicKey(), solana.SystemProgramID, 0, []byte{1, 2, 3})

	borrow, err := acc.Borrow()
	require.NoError(t, err)

	_, err = acc.Borrow()
	assert.ErrorIs(t, err, domain.ErrAccountBorrowFailed)

	require.NoError(t, borrow.Commit([]byte{4, 5, 6}))
	assert.Equal(t, []byte{4, 5, 6}, acc.Data())

	assert.ErrorIs(t, borrow.Commit([]byte{7, 8, 9}), domain.ErrAccountBorrowFailed)
	assert.Equal(t, []byte{4, 5, 6}, acc.Data())
}

func TestAccount_ReleaseWithoutCommit(t *testing.T) {
	acc := domain.NewAccount(solana.NewWallet().PublicKey(), solana.SystemProgramID, 0, []byte{1, 2, 3})

	borrow, err := acc.Borrow()
	require.NoError(t, err)
	borrow.Bytes()[0] = 99
	borrow.Release()
	borrow.Release()

	assert.Equal(t, []byte{1, 2, 3}, acc.Data())

	_, err = acc.Borrow()
	assert.NoError(t, err)
}

func TestAccount_CommitWrongSize(t *testing.T) {
	acc := domain.NewAccount(solana.NewWallet().PublicKey(), solana.SystemProgramID, 0, make([]byte, 4))

	borrow, err := acc.Borrow()
	require.NoError(t, err)
	defer borrow.Release()

	assert.ErrorIs(t, borrow.Commit([]byte{1}), domain.ErrInvalidAccountData)
	assert.Equal(t, make([]byte, 4), acc.Data())
}

func TestAccount_NewAccountCopiesData(t *testing.T) {
	src := []byte{1, 2}
	acc := domain.NewAccount(solana.NewWallet().PublicKey(), solana.SystemProgramID, 0, src)
	src[0] = 9
	assert.Equal(t, []byte{1, 2}, acc.Data())

	require.NoError(t, acc.Allocate(12))
	assert.Equal(t, 12, acc.DataLen())
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, uint32(0), domain.ErrorCode(nil))
	assert.Equal(t, uint32(3), domain.ErrorCode(domain.ErrInsufficientFunds))
	assert.Equal(t, uint32(9), domain.ErrorCode(fmt.Errorf("credit: %w", domain.ErrAccountNotWritable)))
	_, err := domain.DecodeInstruction(nil)
	assert.Equal(t, uint32(1), domain.ErrorCode(err))
}
