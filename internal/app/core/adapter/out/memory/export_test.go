package memory

import "github.com/JoeShih716/go-balance-ledger/internal/app/core/domain"

// LockAccounts 取得 tx 會用到的帳戶鎖，回傳解鎖函式
func (m *MutexLedger) LockAccounts(tx *domain.Transaction) func() {
	return m.lockAccounts(tx)
}
