package usecase

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/JoeShih716/go-balance-ledger/internal/app/program/domain"
)

// Provision 為使用者建立餘額帳戶
//
// 參數:
//
//	ctx: 上下文
//	rt: 宿主執行環境
//	user: 使用者 (簽名者，同時支付 lamports)
//	target: 要建立的餘額帳戶 (PDA)
//	systemProgram: system program 帳戶
//	bump: PDA bump seed
//
// 回傳:
//
//	error: 宿主拒絕時回傳包裝過的 ErrProvisionFailed
func (p *BalanceProgram) Provision(ctx context.Context, rt Runtime, user, target, systemProgram *domain.Account, bump uint8) error {
	programID := rt.ProgramID()

	expected, err := domain.DeriveBalanceAddress(programID, user.Key, bump)
	if err != nil {
		return fmt.Errorf("%w: derive address: %w", domain.ErrProvisionFailed, err)
	}
	if !expected.Equals(target.Key) {
		return fmt.Errorf("%w: balance account %s does not match derived address %s", domain.ErrProvisionFailed, target.Key, expected)
	}

	space := domain.BalanceAccountSize
	lamports := rt.MinimumBalance(space)

	ix := system.NewCreateAccountInstruction(
		lamports,
		uint64(space),
		programID,
		user.Key,
		target.Key,
	).Build()

	seeds := domain.BalanceAccountSeeds(user.Key, bump)
	if err := rt.InvokeSigned(ctx, ix, []*domain.Account{user, target, systemProgram}, seeds); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProvisionFailed, err)
	}

	rt.Log("user balance account %s successfully created", target.Key)
	return nil
}
