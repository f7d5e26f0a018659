package runtime

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProgram 指令指向未註冊的程式
	ErrUnknownProgram = errors.New("unknown program")

	// ErrCallDepth CPI 巢狀深度超過上限
	ErrCallDepth = errors.New("cross-program invocation depth exceeded")

	// ErrMissingAccount CPI 指令引用了呼叫者沒有傳入的帳戶
	ErrMissingAccount = errors.New("instruction references an account that was not passed")

	// ErrPrivilegeEscalation CPI 要求呼叫者沒有的可寫或簽名權限
	ErrPrivilegeEscalation = errors.New("cross-program invocation privilege escalation")

	// ErrReadonlyModified 唯讀帳戶被修改
	ErrReadonlyModified = errors.New("read-only account modified")

	// ErrExecutableModified 程式帳戶被修改
	ErrExecutableModified = errors.New("executable account modified")

	// ErrUnbalancedTransaction lamports 總量在交易前後不一致
	ErrUnbalancedTransaction = errors.New("sum of account lamports changed")
)

// system program 的錯誤
var (
	ErrInvalidSystemInstruction = errors.New("invalid system instruction")
	ErrUnsupportedInstruction   = errors.New("unsupported system instruction")
	ErrNotEnoughAccountKeys     = errors.New("not enough account keys")
	ErrMissingRequiredSignature = errors.New("missing required signature")
	ErrAccountAlreadyInUse      = errors.New("account already in use")
	ErrInsufficientLamports     = errors.New("insufficient lamports")
	ErrAccountNotRentExempt     = errors.New("account not rent exempt")
	ErrAccountDataTooLarge      = errors.New("account data too large")
	ErrTransferFromDataAccount  = errors.New("from account must be a system account without data")
	ErrAccountNotWritable       = errors.New("account is not writable")
)

// InstructionError 標示失敗的指令位置
type InstructionError struct {
	Index int
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d: %v", e.Index, e.Err)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}
