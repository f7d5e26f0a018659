package usecase

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/JoeShih716/go-balance-ledger/internal/app/program/domain"
)

// Runtime 是宿主帳本在單次指令執行期間提供給程式的能力
type Runtime interface {
	// ProgramID 目前被呼叫的程式地址
	ProgramID() solana.PublicKey
	// MinimumBalance 回傳 dataLen bytes 免租金所需的最低 lamports
	MinimumBalance(dataLen int) uint64
	// InvokeSigned 呼叫其他程式 (CPI)
	// signerSeeds 中每組 seeds 以呼叫者的 ProgramID 衍生出的地址，在這次呼叫中視為已簽名
	InvokeSigned(ctx context.Context, ix solana.Instruction, accounts []*domain.Account, signerSeeds ...[][]byte) error
	// Log 輸出程式日誌
	Log(format string, args ...any)
}

// Program 是可以被宿主註冊並呼叫的程式
type Program interface {
	Process(ctx context.Context, rt Runtime, accounts []*domain.Account, data []byte) error
}
