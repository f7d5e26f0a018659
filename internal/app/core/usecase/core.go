package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/JoeShih716/go-balance-ledger/internal/app/core/domain"
	programdomain "github.com/JoeShih716/go-balance-ledger/internal/app/program/domain"
	"github.com/JoeShih716/go-balance-ledger/pkg/metrics"
)

// BalanceView 解碼後的餘額帳戶
type BalanceView struct {
	Address solana.PublicKey
	Bump    uint8
	Record  programdomain.BalanceAccount
}

// CoreUseCase 是核心業務邏輯層
type CoreUseCase struct {
	ledger     Ledger
	ledgerName string
	programID  solana.PublicKey
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// NewCoreUseCase 建立 CoreUseCase
//
// 參數:
//
//	ledger: 帳本實作
//	ledgerName: 帳本類型名稱，作為指標的 label
//	programID: 餘額程式的地址，用於衍生餘額帳戶
//	logger: 結構化 logger
//	m: 指標，nil 時不記錄
func NewCoreUseCase(ledger Ledger, ledgerName string, programID solana.PublicKey, logger zerolog.Logger, m *metrics.Metrics) *CoreUseCase {
	if m == nil {
		m = metrics.NewNop()
	}
	return &CoreUseCase{
		ledger:     ledger,
		ledgerName: ledgerName,
		programID:  programID,
		logger:     logger,
		metrics:    m,
	}
}

// ProgramID 回傳餘額程式地址
func (c *CoreUseCase) ProgramID() solana.PublicKey {
	return c.programID
}

// PostTransaction 處理交易
func (c *CoreUseCase) PostTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Receipt, error) {
	start := time.Now()
	receipt, err := c.ledger.ProcessTransaction(ctx, tx)
	c.metrics.TransactionDuration.WithLabelValues(c.ledgerName).Observe(time.Since(start).Seconds())

	if err != nil {
		reason := rejectReason(err)
		c.metrics.TransactionsRejected.WithLabelValues(c.ledgerName, reason).Inc()
		c.logger.Info().Str("tx", tx.ID.String()).Str("reason", reason).Err(err).Msg("transaction rejected")
		return receipt, err
	}
	if receipt.Duplicate {
		c.metrics.TransactionsRejected.WithLabelValues(c.ledgerName, "duplicate").Inc()
		c.logger.Debug().Str("tx", tx.ID.String()).Msg("duplicate transaction ignored")
		return receipt, nil
	}

	c.metrics.TransactionsProcessed.WithLabelValues(c.ledgerName).Inc()
	c.metrics.AccountsCommitted.Add(float64(len(receipt.Changed)))
	c.logger.Debug().Str("tx", tx.ID.String()).Int("changed", len(receipt.Changed)).Msg("transaction committed")
	return receipt, nil
}

// GetAccount 取得帳戶
func (c *CoreUseCase) GetAccount(ctx context.Context, key solana.PublicKey) (*domain.AccountSnapshot, error) {
	return c.ledger.GetAccount(ctx, key)
}

// GetBalanceAccount 衍生使用者的餘額帳戶地址並解碼紀錄
//
// 回傳:
//
//	*BalanceView: 餘額帳戶
//	error: 帳戶不存在時回傳 domain.ErrAccountNotFound，不屬於餘額程式或資料錯誤時回傳程式錯誤
func (c *CoreUseCase) GetBalanceAccount(ctx context.Context, user solana.PublicKey) (*BalanceView, error) {
	addr, bump, err := programdomain.FindBalanceAddress(c.programID, user)
	if err != nil {
		return nil, fmt.Errorf("derive balance account: %w", err)
	}
	snap, err := c.ledger.GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !snap.Owner.Equals(c.programID) {
		return nil, fmt.Errorf("%w: %s is owned by %s", programdomain.ErrOwnership, addr, snap.Owner)
	}
	record, err := programdomain.DecodeBalanceAccount(snap.Data)
	if err != nil {
		return nil, err
	}
	return &BalanceView{Address: addr, Bump: bump, Record: record}, nil
}

// rejectReason 將錯誤分類為低基數的指標 label
func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingSignature), errors.Is(err, domain.ErrInvalidSignature), errors.Is(err, domain.ErrUnexpectedSigner):
		return "signature"
	case errors.Is(err, domain.ErrMalformedTransaction), errors.Is(err, domain.ErrEmptyTransaction):
		return "malformed"
	case errors.Is(err, domain.ErrWALWriteFailed):
		return "wal"
	case errors.Is(err, domain.ErrLedgerClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "unavailable"
	case programdomain.ErrorCode(err) != 0:
		return "program_error"
	default:
		return "runtime_error"
	}
}
