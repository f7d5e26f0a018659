package domain

import (
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// AccountSnapshot 帳本中持久化的帳戶狀態
type AccountSnapshot struct {
	Key        solana.PublicKey
	Owner      solana.PublicKey
	Lamports   uint64
	Data       []byte
	Executable bool
}

// Clone 深拷貝，避免呼叫端修改帳本內部的資料
func (a *AccountSnapshot) Clone() *AccountSnapshot {
	out := *a
	out.Data = append([]byte(nil), a.Data...)
	return &out
}

// Receipt 交易執行結果
//
// 結構:
//
//	TransactionID: 交易 ID
//	Logs: 程式日誌 (失敗的交易也會帶回日誌)
//	Changed: 被寫入的帳戶
//	Duplicate: 交易先前已處理過，這次沒有重新執行
type Receipt struct {
	TransactionID uuid.UUID
	Logs          []string
	Changed       []solana.PublicKey
	Duplicate     bool
}
