package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/JoeShih716/go-balance-ledger/internal/app/program/domain"
)

// Credit 入帳
func (p *BalanceProgram) Credit(ctx context.Context, rt Runtime, account *domain.Account, amount uint32) error {
	if err := requireOwnership(rt.ProgramID(), account); err != nil {
		rt.Log("Account does not have the correct program id")
		return err
	}
	if err := requireWritable(account); err != nil {
		rt.Log("Balance account is not writable")
		return err
	}

	state, err := updateBalanceAccount(account, func(s domain.BalanceAccount) (domain.BalanceAccount, error) {
		return s.Credit(amount)
	})
	if err != nil {
		return err
	}

	rt.Log("Credited %d to the balance, new balance: %d", amount, state.Balance)
	return nil
}

// Debit 扣款，餘額不足時不留下任何紀錄
func (p *BalanceProgram) Debit(ctx context.Context, rt Runtime, account *domain.Account, amount uint32) error {
	if err := requireOwnership(rt.ProgramID(), account); err != nil {
		rt.Log("Account does not have the correct program id")
		return err
	}
	if err := requireWritable(account); err != nil {
		rt.Log("Balance account is not writable")
		return err
	}

	state, err := updateBalanceAccount(account, func(s domain.BalanceAccount) (domain.BalanceAccount, error) {
		return s.Debit(amount)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			rt.Log("Insufficient funds for debit")
		}
		return err
	}

	rt.Log("Debited %d from the balance, new balance: %d", amount, state.Balance)
	return nil
}

// requireOwnership 確認 handle 由本程式擁有，在讀取任何資料之前呼叫
func requireOwnership(programID solana.PublicKey, account *domain.Account) error {
	if !account.Owner.Equals(programID) {
		return fmt.Errorf("%w: %s is owned by %s", domain.ErrOwnership, account.Key, account.Owner)
	}
	return nil
}

// requireWritable 確認這個指令將 handle 標記為可寫，在借用資料之前呼叫
func requireWritable(account *domain.Account) error {
	if !account.IsWritable {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotWritable, account.Key)
	}
	return nil
}

// updateBalanceAccount 借用帳戶資料、套用狀態轉換，只有成功時寫回一次
func updateBalanceAccount(account *domain.Account, apply func(domain.BalanceAccount) (domain.BalanceAccount, error)) (domain.BalanceAccount, error) {
	borrow, err := account.Borrow()
	if err != nil {
		return domain.BalanceAccount{}, err
	}
	defer borrow.Release()

	current, err := domain.DecodeBalanceAccount(borrow.Bytes())
	if err != nil {
		return current, err
	}
	next, err := apply(current)
	if err != nil {
		return current, err
	}
	data, err := next.Encode()
	if err != nil {
		return current, err
	}
	if err := borrow.Commit(data); err != nil {
		return current, err
	}
	return next, nil
}
