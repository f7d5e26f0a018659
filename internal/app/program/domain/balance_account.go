package domain

import (
	"bytes"
	"fmt"
	"math"

	bin "github.com/gagliardetto/binary"
)

// BalanceAccountSize 帳戶資料固定長度 (3 個 u32，little-endian，無 padding)
const BalanceAccountSize = 12

// BalanceAccount 使用者餘額帳戶的持久化格式
//
// 不變量: Balance == CreditedAmount - DebitedAmount 且 CreditedAmount >= DebitedAmount
type BalanceAccount struct {
	// CreditedAmount: 所有成功入帳的總和
	CreditedAmount uint32
	// DebitedAmount: 所有成功扣款的總和
	DebitedAmount uint32
	// Balance: 目前可用餘額
	Balance uint32
}

func (a *BalanceAccount) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteUint32(a.CreditedAmount, bin.LE); err != nil {
		return err
	}
	if err := encoder.WriteUint32(a.DebitedAmount, bin.LE); err != nil {
		return err
	}
	return encoder.WriteUint32(a.Balance, bin.LE)
}

func (a *BalanceAccount) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if a.CreditedAmount, err = decoder.ReadUint32(bin.LE); err != nil {
		return err
	}
	if a.DebitedAmount, err = decoder.ReadUint32(bin.LE); err != nil {
		return err
	}
	a.Balance, err = decoder.ReadUint32(bin.LE)
	return err
}

// Encode 序列化為 12 bytes
func (a BalanceAccount) Encode() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, BalanceAccountSize))
	if err := a.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeBalanceAccount 反序列化帳戶資料，長度必須剛好 12 bytes 且符合不變量
//
// 參數:
//
//	data: 帳戶原始資料
//
// 回傳:
//
//	BalanceAccount: 解析後的帳戶
//	error: ErrInvalidAccountData
func DecodeBalanceAccount(data []byte) (BalanceAccount, error) {
	var acc BalanceAccount
	if len(data) != BalanceAccountSize {
		return acc, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAccountData, BalanceAccountSize, len(data))
	}
	if err := acc.UnmarshalWithDecoder(bin.NewBorshDecoder(data)); err != nil {
		return acc, fmt.Errorf("%w: %v", ErrInvalidAccountData, err)
	}
	if err := acc.CheckInvariant(); err != nil {
		return acc, err
	}
	return acc, nil
}

// CheckInvariant 檢查 balance == credited - debited
func (a BalanceAccount) CheckInvariant() error {
	if a.CreditedAmount < a.DebitedAmount || a.CreditedAmount-a.DebitedAmount != a.Balance {
		return fmt.Errorf("%w: credited=%d debited=%d balance=%d",
			ErrInvalidAccountData, a.CreditedAmount, a.DebitedAmount, a.Balance)
	}
	return nil
}

// Credit 計算入帳後的新狀態，原狀態不變
func (a BalanceAccount) Credit(amount uint32) (BalanceAccount, error) {
	credited, ok := checkedAdd(a.CreditedAmount, amount)
	if !ok {
		return a, fmt.Errorf("%w: credited amount %d + %d", ErrOverflow, a.CreditedAmount, amount)
	}
	balance, ok := checkedAdd(a.Balance, amount)
	if !ok {
		return a, fmt.Errorf("%w: balance %d + %d", ErrOverflow, a.Balance, amount)
	}
	a.CreditedAmount = credited
	a.Balance = balance
	return a, nil
}

// Debit 計算扣款後的新狀態，原狀態不變
// 餘額檢查必須在累加 DebitedAmount 之前
func (a BalanceAccount) Debit(amount uint32) (BalanceAccount, error) {
	if a.Balance < amount {
		return a, fmt.Errorf("%w: balance %d, debit %d", ErrInsufficientFunds, a.Balance, amount)
	}
	debited, ok := checkedAdd(a.DebitedAmount, amount)
	if !ok {
		return a, fmt.Errorf("%w: debited amount %d + %d", ErrOverflow, a.DebitedAmount, amount)
	}
	a.DebitedAmount = debited
	a.Balance -= amount
	return a, nil
}

func checkedAdd(a, b uint32) (uint32, bool) {
	if a > math.MaxUint32-b {
		return 0, false
	}
	return a + b, true
}
