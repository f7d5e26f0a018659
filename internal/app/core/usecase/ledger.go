package usecase

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/JoeShih716/go-balance-ledger/internal/app/core/domain"
)

// Ledger 是帳務系統的介面
type Ledger interface {
	// ProcessTransaction 原子地執行交易，失敗時 Receipt 仍帶回程式日誌
	ProcessTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Receipt, error)
	// GetAccount 取得帳戶狀態，不存在時回傳 domain.ErrAccountNotFound
	GetAccount(ctx context.Context, key solana.PublicKey) (*domain.AccountSnapshot, error)
	// LoadAllAccounts 載入所有帳戶
	LoadAllAccounts(ctx context.Context) (map[solana.PublicKey]*domain.AccountSnapshot, error)
}
