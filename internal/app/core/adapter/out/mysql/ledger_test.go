package mysql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gagliardetto/solana-go"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-balance-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-balance-ledger/internal/app/core/runtime"
	programdomain "github.com/JoeShih716/go-balance-ledger/internal/app/program/domain"
	programusecase "github.com/JoeShih716/go-balance-ledger/internal/app/program/usecase"
	"github.com/JoeShih716/go-balance-ledger/pkg/mysql"
)

func TestSnapshotRowConversion(t *testing.T) {
	snap := &domain.AccountSnapshot{
		Key:      solana.NewWallet().PublicKey(),
		Owner:    solana.NewWallet().PublicKey(),
		Lamports: 974400,
		Data:     []byte{100, 0, 0, 0, 40, 0, 0, 0, 60, 0, 0, 0},
	}

	row := fromSnapshot(snap)
	require.Len(t, row.Pubkey, solana.PublicKeyLength)
	require.Len(t, row.Owner, solana.PublicKeyLength)
	assert.Equal(t, snap, toSnapshot(&row))
}

func TestKeyBytes(t *testing.T) {
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()
	out := keyBytes([]solana.PublicKey{a, b})
	assert.Equal(t, [][]byte{a.Bytes(), b.Bytes()}, out)
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "accounts", (&sqlAccount{}).TableName())
	assert.Equal(t, "transactions", (&sqlTransaction{}).TableName())
}

const (
	selectTransaction = "SELECT \\* FROM `transactions` WHERE ref_id = \\?"
	lockForUpdate     = "SELECT \\* FROM `accounts` WHERE pubkey IN .* FOR UPDATE"
	lockForShare      = "SELECT \\* FROM `accounts` WHERE pubkey IN .* FOR SHARE"
	upsertAccounts    = "INSERT INTO `accounts` .* ON DUPLICATE KEY UPDATE"
	insertTransaction = "INSERT INTO `transactions`"
)

var accountColumns = []string{"pubkey", "owner", "lamports", "data", "executable", "updated_at"}

type sqlFixture struct {
	mock      sqlmock.Sqlmock
	ledger    *MySQLLedger
	programID solana.PublicKey
	user      solana.PublicKey
	balance   solana.PublicKey
}

func newSQLFixture(t *testing.T) *sqlFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	client, err := mysql.NewClientWithConn(db, mysql.Config{LogLevel: "silent"}, zerolog.Nop())
	require.NoError(t, err)

	programID := solana.NewWallet().PublicKey()
	user := solana.NewWallet().PublicKey()
	balance, _, err := programdomain.FindBalanceAddress(programID, user)
	require.NoError(t, err)

	executor := runtime.NewExecutor(runtime.WithProgram(programID, programusecase.NewBalanceProgram()))
	return &sqlFixture{
		mock:      mock,
		ledger:    NewMySQLLedger(client, executor, zerolog.Nop()),
		programID: programID,
		user:      user,
		balance:   balance,
	}
}

// creditTx 建立入帳交易，額外附上唯讀的使用者帳戶
func (f *sqlFixture) creditTx(t *testing.T, amount uint32) *domain.Transaction {
	t.Helper()
	ix, err := programdomain.NewCreditInstruction(f.programID, f.user, amount)
	require.NoError(t, err)
	hostIx, err := domain.NewInstruction(ix)
	require.NoError(t, err)
	hostIx.Accounts = append(hostIx.Accounts, solana.Meta(f.user))
	return domain.NewTransaction(hostIx)
}

func (f *sqlFixture) balanceRow(t *testing.T, owner solana.PublicKey, state programdomain.BalanceAccount) *sqlmock.Rows {
	t.Helper()
	data, err := state.Encode()
	require.NoError(t, err)
	return sqlmock.NewRows(accountColumns).
		AddRow(f.balance.Bytes(), owner.Bytes(), int64(974400), data, false, int64(0))
}

// expectExecution 交易記錄不存在，鎖定帳戶並寫回
func (f *sqlFixture) expectExecution(t *testing.T) {
	t.Helper()
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(selectTransaction).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	// 只有餘額帳戶取寫鎖，程式帳戶不鎖定
	f.mock.ExpectQuery(lockForUpdate).
		WithArgs(f.balance.Bytes()).
		WillReturnRows(f.balanceRow(t, f.programID, programdomain.BalanceAccount{CreditedAmount: 5, Balance: 5}))
	f.mock.ExpectQuery(lockForShare).
		WithArgs(f.user.Bytes()).
		WillReturnRows(sqlmock.NewRows(accountColumns))
	f.mock.ExpectExec(upsertAccounts).WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestMySQLLedger_ProcessTransaction(t *testing.T) {
	f := newSQLFixture(t)
	f.expectExecution(t)
	f.mock.ExpectExec(insertTransaction).WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectCommit()

	receipt, err := f.ledger.ProcessTransaction(context.Background(), f.creditTx(t, 10))
	require.NoError(t, err)
	assert.False(t, receipt.Duplicate)
	assert.Equal(t, []solana.PublicKey{f.balance}, receipt.Changed)
	assert.Contains(t, receipt.Logs, "Program log: Credited 10 to the balance, new balance: 15")
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMySQLLedger_AlreadyProcessed(t *testing.T) {
	f := newSQLFixture(t)
	tx := f.creditTx(t, 10)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(selectTransaction).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ref_id"}).AddRow(int64(1), tx.ID[:]))
	f.mock.ExpectCommit()

	receipt, err := f.ledger.ProcessTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.True(t, receipt.Duplicate)
	assert.Empty(t, receipt.Changed)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMySQLLedger_ConcurrentDuplicateCommit(t *testing.T) {
	f := newSQLFixture(t)
	f.expectExecution(t)
	// 另一個請求先寫入了同一個 ref_id
	f.mock.ExpectExec(insertTransaction).
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry for key 'idx_transactions_ref_id'"})
	f.mock.ExpectRollback()

	tx := f.creditTx(t, 10)
	receipt, err := f.ledger.ProcessTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.True(t, receipt.Duplicate)
	assert.Equal(t, tx.ID, receipt.TransactionID)
	assert.Empty(t, receipt.Changed)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMySQLLedger_ProgramErrorRollsBack(t *testing.T) {
	f := newSQLFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(selectTransaction).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	f.mock.ExpectQuery(lockForUpdate).
		WithArgs(f.balance.Bytes()).
		WillReturnRows(f.balanceRow(t, solana.NewWallet().PublicKey(), programdomain.BalanceAccount{}))
	f.mock.ExpectQuery(lockForShare).
		WithArgs(f.user.Bytes()).
		WillReturnRows(sqlmock.NewRows(accountColumns))
	f.mock.ExpectRollback()

	receipt, err := f.ledger.ProcessTransaction(context.Background(), f.creditTx(t, 10))
	assert.ErrorIs(t, err, programdomain.ErrOwnership)
	require.NotNil(t, receipt)
	assert.False(t, receipt.Duplicate)
	assert.Empty(t, receipt.Changed)
	assert.Contains(t, receipt.Logs, "Program log: Account does not have the correct program id")
	require.NoError(t, f.mock.ExpectationsWereMet())
}
