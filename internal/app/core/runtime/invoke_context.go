package runtime

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	programdomain "github.com/JoeShih716/go-balance-ledger/internal/app/program/domain"
	"github.com/JoeShih716/go-balance-ledger/internal/app/program/usecase"
)

// MaxInvokeDepth 程式呼叫的最大巢狀深度 (頂層指令為 1)
const MaxInvokeDepth = 4

// invokeContext 單次程式呼叫期間提供給程式的 Runtime
type invokeContext struct {
	executor  *Executor
	programID solana.PublicKey
	depth     int
	logs      *[]string
}

func (ic *invokeContext) ProgramID() solana.PublicKey {
	return ic.programID
}

func (ic *invokeContext) MinimumBalance(dataLen int) uint64 {
	return ic.executor.rent.MinimumBalance(dataLen)
}

func (ic *invokeContext) Log(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	*ic.logs = append(*ic.logs, "Program log: "+msg)
	ic.executor.logger.Debug().Str("program", ic.programID.String()).Msg(msg)
}

// InvokeSigned 呼叫其他程式
// 被呼叫者只能取得呼叫者已有的權限，signerSeeds 以呼叫者 ProgramID 衍生出的地址視為已簽名
func (ic *invokeContext) InvokeSigned(ctx context.Context, ix solana.Instruction, accounts []*programdomain.Account, signerSeeds ...[][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ic.depth >= MaxInvokeDepth {
		return fmt.Errorf("%w: depth %d", ErrCallDepth, ic.depth+1)
	}

	pdaSigners := make(map[solana.PublicKey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		addr, err := solana.CreateProgramAddress(seeds, ic.programID)
		if err != nil {
			return fmt.Errorf("%w: invalid signer seeds: %w", ErrPrivilegeEscalation, err)
		}
		pdaSigners[addr] = true
	}

	available := make(map[solana.PublicKey]*programdomain.Account, len(accounts))
	for _, acc := range accounts {
		available[acc.Key] = acc
	}
	calleeID := ix.ProgramID()
	if _, ok := available[calleeID]; !ok {
		return fmt.Errorf("%w: program %s", ErrMissingAccount, calleeID)
	}

	data, err := ix.Data()
	if err != nil {
		return fmt.Errorf("encode instruction data: %w", err)
	}

	metas := ix.Accounts()
	callee := make([]*programdomain.Account, len(metas))
	for i, meta := range metas {
		acc, ok := available[meta.PublicKey]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingAccount, meta.PublicKey)
		}
		if meta.IsWritable && !acc.IsWritable {
			return fmt.Errorf("%w: %s is not writable", ErrPrivilegeEscalation, meta.PublicKey)
		}
		if meta.IsSigner && !acc.IsSigner && !pdaSigners[meta.PublicKey] {
			return fmt.Errorf("%w: %s did not sign", ErrPrivilegeEscalation, meta.PublicKey)
		}
		callee[i] = acc
	}

	restore := grantPrivileges(metas, callee)
	defer restore()

	return ic.executor.invoke(ctx, calleeID, callee, data, ic.depth+1, ic.logs)
}

// grantPrivileges 將 handle 的權限設為被呼叫指令的 meta，回傳還原函式
func grantPrivileges(metas []*solana.AccountMeta, accounts []*programdomain.Account) func() {
	type flags struct{ signer, writable bool }
	saved := make(map[*programdomain.Account]flags, len(accounts))
	for _, acc := range accounts {
		if _, ok := saved[acc]; !ok {
			saved[acc] = flags{acc.IsSigner, acc.IsWritable}
		}
		acc.IsSigner = false
		acc.IsWritable = false
	}
	for i, meta := range metas {
		accounts[i].IsSigner = accounts[i].IsSigner || meta.IsSigner
		accounts[i].IsWritable = accounts[i].IsWritable || meta.IsWritable
	}
	return func() {
		for acc, f := range saved {
			acc.IsSigner = f.signer
			acc.IsWritable = f.writable
		}
	}
}

var _ usecase.Runtime = (*invokeContext)(nil)
