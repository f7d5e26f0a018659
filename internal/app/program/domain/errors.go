package domain

import "errors"

var (
	// ErrInvalidInstructionData 指令資料格式錯誤 (空資料、未知 opcode、長度不符)
	ErrInvalidInstructionData = errors.New("invalid instruction data")

	// ErrOwnership 帳戶不屬於本程式
	ErrOwnership = errors.New("account is not owned by this program")

	// ErrInsufficientFunds 餘額不足
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrOverflow 計數器超出 32 位元範圍
	ErrOverflow = errors.New("arithmetic overflow")

	// ErrProvisionFailed 宿主拒絕配置帳戶
	ErrProvisionFailed = errors.New("balance account provisioning failed")

	// ErrNotEnoughAccountKeys 傳入的帳戶數量不足
	ErrNotEnoughAccountKeys = errors.New("not enough account keys")

	// ErrInvalidAccountData 帳戶資料長度錯誤或違反不變量
	ErrInvalidAccountData = errors.New("invalid account data")

	// ErrAccountBorrowFailed 帳戶資料已被借用
	ErrAccountBorrowFailed = errors.New("account data already borrowed")

	// ErrAccountNotWritable 指令沒有將餘額帳戶標記為可寫
	ErrAccountNotWritable = errors.New("account is not writable")
)

// errorCodes 對外回報的穩定錯誤代碼
var errorCodes = []struct {
	err  error
	code uint32
}{
	{ErrInvalidInstructionData, 1},
	{ErrOwnership, 2},
	{ErrInsufficientFunds, 3},
	{ErrOverflow, 4},
	{ErrProvisionFailed, 5},
	{ErrNotEnoughAccountKeys, 6},
	{ErrInvalidAccountData, 7},
	{ErrAccountBorrowFailed, 8},
	{ErrAccountNotWritable, 9},
}

// ErrorCode 回傳錯誤對應的程式錯誤代碼，非本程式錯誤回傳 0
func ErrorCode(err error) uint32 {
	if err == nil {
		return 0
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return 0
}
