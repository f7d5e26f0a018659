package memory

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/JoeShih716/go-balance-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-balance-ledger/internal/app/core/runtime"
	"github.com/JoeShih716/go-balance-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-balance-ledger/pkg/wal"
)

// MutexLedger 是一個使用帳戶層級讀寫鎖實現的帳本
// 可寫帳戶取寫鎖，唯讀帳戶與程式帳戶取讀鎖
// 可寫帳戶不相交的交易可以並行執行，寫入同一帳戶的交易依序執行
//
// 結構:
//
//	store: 帳戶資料與已處理交易
//	locks: 每個帳戶的讀寫鎖 (map[solana.PublicKey]*sync.RWMutex)
type MutexLedger struct {
	store *accountStore
	locks sync.Map
}

// NewMutexLedger 建立一個新的 MutexLedger 實例
//
// 參數:
//
//	executor: 交易執行器
//	accounts: 初始帳戶資料 Map
//	w: Write-Ahead Log 實例，nil 表示不持久化
//
// 回傳:
//
//	*MutexLedger: MutexLedger 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewMutexLedger(executor *runtime.Executor, accounts map[solana.PublicKey]*domain.AccountSnapshot, w *wal.WAL, opts ...Option) (*MutexLedger, error) {
	ledger := &MutexLedger{
		store: newAccountStore(executor, accounts, w, buildOptions(opts)),
	}
	if err := ledger.store.recoverFromWAL(); err != nil {
		return nil, err
	}
	return ledger, nil
}

// ProcessTransaction 處理交易請求
// 依排序後的 key 順序鎖定所有涉及的帳戶，避免死鎖
//
// 參數:
//
//	ctx: 上下文
//	tx: 交易
//
// 回傳:
//
//	*domain.Receipt: 執行結果
//	error: 處理錯誤
func (m *MutexLedger) ProcessTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Receipt, error) {
	unlock := m.lockAccounts(tx)
	defer unlock()
	return m.store.process(ctx, tx)
}

// lockAccounts 依 tx.AccountKeys 的順序鎖定帳戶，回傳解鎖函式
// 任一指令標記為可寫的帳戶取寫鎖，其餘取讀鎖
func (m *MutexLedger) lockAccounts(tx *domain.Transaction) func() {
	keys := tx.AccountKeys()
	unlocks := make([]func(), 0, len(keys))
	for _, key := range keys {
		v, _ := m.locks.LoadOrStore(key, &sync.RWMutex{})
		mu := v.(*sync.RWMutex)
		if tx.IsWritable(key) {
			mu.Lock()
			unlocks = append(unlocks, mu.Unlock)
		} else {
			mu.RLock()
			unlocks = append(unlocks, mu.RUnlock)
		}
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// GetAccount 取得指定帳戶的當前狀態
//
// 參數:
//
//	ctx: 上下文
//	key: 帳戶地址
//
// 回傳:
//
//	*domain.AccountSnapshot: 帳戶狀態的複本
//	error: 查詢錯誤 (如帳戶不存在)
func (m *MutexLedger) GetAccount(ctx context.Context, key solana.PublicKey) (*domain.AccountSnapshot, error) {
	return m.store.get(key)
}

// LoadAllAccounts 載入系統所有帳戶資料的複本
func (m *MutexLedger) LoadAllAccounts(ctx context.Context) (map[solana.PublicKey]*domain.AccountSnapshot, error) {
	return m.store.all(), nil
}

var _ usecase.Ledger = (*MutexLedger)(nil)
