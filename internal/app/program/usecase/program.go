package usecase

import (
	"context"
	"fmt"

	"github.com/JoeShih716/go-balance-ledger/internal/app/program/domain"
)

// BalanceProgram 餘額帳戶程式
// 無狀態：每次呼叫都是獨立的狀態轉換，帳戶資料每次都從 handle 重新讀取
type BalanceProgram struct{}

func NewBalanceProgram() *BalanceProgram {
	return &BalanceProgram{}
}

// Process 程式進入點，解析 payload 後分派
//
// 參數:
//
//	ctx: 上下文
//	rt: 宿主提供的執行環境
//	accounts: 指令的帳戶列表 (順序固定)
//	data: 原始指令資料
//
// 回傳:
//
//	error: 任何錯誤都代表這次呼叫沒有寫入任何資料
func (p *BalanceProgram) Process(ctx context.Context, rt Runtime, accounts []*domain.Account, data []byte) error {
	rt.Log("Program entrypoint")

	ix, err := domain.DecodeInstruction(data)
	if err != nil {
		return err
	}
	return p.Execute(ctx, rt, ix, accounts)
}

// Execute 以解析後的指令分派到對應操作
func (p *BalanceProgram) Execute(ctx context.Context, rt Runtime, ix domain.Instruction, accounts []*domain.Account) error {
	switch ix.Opcode {
	case domain.OpcodeProvision:
		if len(accounts) < 3 {
			return fmt.Errorf("%w: %s requires 3 accounts, got %d", domain.ErrNotEnoughAccountKeys, ix.Opcode, len(accounts))
		}
		return p.Provision(ctx, rt, accounts[0], accounts[1], accounts[2], ix.Bump)
	case domain.OpcodeCredit:
		if len(accounts) < 1 {
			return fmt.Errorf("%w: %s requires 1 account", domain.ErrNotEnoughAccountKeys, ix.Opcode)
		}
		return p.Credit(ctx, rt, accounts[0], ix.Amount)
	case domain.OpcodeDebit:
		if len(accounts) < 1 {
			return fmt.Errorf("%w: %s requires 1 account", domain.ErrNotEnoughAccountKeys, ix.Opcode)
		}
		return p.Debit(ctx, rt, accounts[0], ix.Amount)
	default:
		return fmt.Errorf("%w: unknown %s", domain.ErrInvalidInstructionData, ix.Opcode)
	}
}

var _ Program = (*BalanceProgram)(nil)
