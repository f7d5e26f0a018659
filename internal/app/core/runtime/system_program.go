package runtime

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	programdomain "github.com/JoeShih716/go-balance-ledger/internal/app/program/domain"
	"github.com/JoeShih716/go-balance-ledger/internal/app/program/usecase"
)

// MaxAccountDataSize 單一帳戶資料上限
const MaxAccountDataSize = 10 * 1024 * 1024

// SystemProgram 內建的 system program，支援 CreateAccount 與 Transfer
type SystemProgram struct{}

// Process 解碼 system 指令後執行
func (SystemProgram) Process(ctx context.Context, rt usecase.Runtime, accounts []*programdomain.Account, data []byte) error {
	metas := make([]*solana.AccountMeta, len(accounts))
	for i, acc := range accounts {
		metas[i] = solana.NewAccountMeta(acc.Key, acc.IsWritable, acc.IsSigner)
	}

	inst, err := system.DecodeInstruction(metas, data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSystemInstruction, err)
	}

	switch impl := inst.Impl.(type) {
	case *system.CreateAccount:
		if len(accounts) < 2 {
			return ErrNotEnoughAccountKeys
		}
		if impl.Lamports == nil || impl.Space == nil || impl.Owner == nil {
			return ErrInvalidSystemInstruction
		}
		return createAccount(rt, accounts[0], accounts[1], *impl.Lamports, *impl.Space, *impl.Owner)
	case *system.Transfer:
		if len(accounts) < 2 {
			return ErrNotEnoughAccountKeys
		}
		if impl.Lamports == nil {
			return ErrInvalidSystemInstruction
		}
		return transfer(rt, accounts[0], accounts[1], *impl.Lamports)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedInstruction, inst.Impl)
	}
}

// createAccount 從 funder 轉出 lamports，配置空間並指定 owner
func createAccount(rt usecase.Runtime, funder, newAccount *programdomain.Account, lamports, space uint64, owner solana.PublicKey) error {
	if space > MaxAccountDataSize {
		return fmt.Errorf("%w: %d bytes", ErrAccountDataTooLarge, space)
	}
	if !funder.IsSigner {
		return fmt.Errorf("%w: funder %s", ErrMissingRequiredSignature, funder.Key)
	}
	if !newAccount.IsSigner {
		return fmt.Errorf("%w: new account %s", ErrMissingRequiredSignature, newAccount.Key)
	}
	if !funder.IsWritable || !newAccount.IsWritable {
		return ErrAccountNotWritable
	}
	if err := requireSystemAccount(funder); err != nil {
		return err
	}
	if !newAccount.Owner.Equals(solana.SystemProgramID) || newAccount.DataLen() > 0 || newAccount.Lamports > 0 {
		rt.Log("Create Account: account %s already in use", newAccount.Key)
		return fmt.Errorf("%w: %s", ErrAccountAlreadyInUse, newAccount.Key)
	}
	if funder.Lamports < lamports {
		rt.Log("Transfer: insufficient lamports %d, need %d", funder.Lamports, lamports)
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientLamports, funder.Key, funder.Lamports, lamports)
	}
	if minimum := rt.MinimumBalance(int(space)); lamports < minimum {
		return fmt.Errorf("%w: %d < %d", ErrAccountNotRentExempt, lamports, minimum)
	}

	if err := newAccount.Allocate(int(space)); err != nil {
		return err
	}
	funder.Lamports -= lamports
	newAccount.Lamports = lamports
	newAccount.Owner = owner
	return nil
}

func transfer(rt usecase.Runtime, from, to *programdomain.Account, lamports uint64) error {
	if !from.IsSigner {
		return fmt.Errorf("%w: %s", ErrMissingRequiredSignature, from.Key)
	}
	if !from.IsWritable || !to.IsWritable {
		return ErrAccountNotWritable
	}
	if err := requireSystemAccount(from); err != nil {
		return err
	}
	if from.Lamports < lamports {
		rt.Log("Transfer: insufficient lamports %d, need %d", from.Lamports, lamports)
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientLamports, from.Key, from.Lamports, lamports)
	}
	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}

var _ usecase.Program = SystemProgram{}

// requireSystemAccount lamports 只能從沒有資料的 system 帳戶轉出
func requireSystemAccount(acc *programdomain.Account) error {
	if !acc.Owner.Equals(solana.SystemProgramID) || acc.DataLen() > 0 {
		return fmt.Errorf("%w: %s", ErrTransferFromDataAccount, acc.Key)
	}
	return nil
}
