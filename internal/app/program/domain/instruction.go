package domain

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Opcode 指令類型，payload 第一個 byte
type Opcode uint8

const (
	// 建立餘額帳戶
	OpcodeProvision Opcode = 1
	// 入帳
	OpcodeCredit Opcode = 2
	// 扣款
	OpcodeDebit Opcode = 3
)

func (o Opcode) String() string {
	switch o {
	case OpcodeProvision:
		return "provision"
	case OpcodeCredit:
		return "credit"
	case OpcodeDebit:
		return "debit"
	default:
		return fmt.Sprintf("opcode(%d)", uint8(o))
	}
}

// argsLen 每個 opcode 後面固定的參數長度
func (o Opcode) argsLen() (int, bool) {
	switch o {
	case OpcodeProvision:
		return 1, true
	case OpcodeCredit, OpcodeDebit:
		return 4, true
	default:
		return 0, false
	}
}

// Instruction 解析後的指令
//
// Bump 只在 OpcodeProvision 有意義，Amount 只在 OpcodeCredit / OpcodeDebit 有意義
type Instruction struct {
	Opcode Opcode
	Bump   uint8
	Amount uint32
}

// DecodeInstruction 解析原始 payload
// 長度必須與 opcode 的固定格式完全相符
func DecodeInstruction(payload []byte) (Instruction, error) {
	var ix Instruction
	if len(payload) == 0 {
		return ix, fmt.Errorf("%w: empty payload", ErrInvalidInstructionData)
	}
	ix.Opcode = Opcode(payload[0])
	n, ok := ix.Opcode.argsLen()
	if !ok {
		return ix, fmt.Errorf("%w: unknown %s", ErrInvalidInstructionData, ix.Opcode)
	}
	if len(payload)-1 != n {
		return ix, fmt.Errorf("%w: %s expects %d argument bytes, got %d", ErrInvalidInstructionData, ix.Opcode, n, len(payload)-1)
	}

	decoder := bin.NewBinDecoder(payload[1:])
	var err error
	switch ix.Opcode {
	case OpcodeProvision:
		ix.Bump, err = decoder.ReadUint8()
	case OpcodeCredit, OpcodeDebit:
		ix.Amount, err = decoder.ReadUint32(bin.LE)
	}
	if err != nil {
		return ix, fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
	}
	return ix, nil
}

// Encode 序列化為 payload
func (ix Instruction) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	encoder := bin.NewBinEncoder(buf)
	if err := encoder.WriteUint8(uint8(ix.Opcode)); err != nil {
		return nil, err
	}
	var err error
	switch ix.Opcode {
	case OpcodeProvision:
		err = encoder.WriteUint8(ix.Bump)
	case OpcodeCredit, OpcodeDebit:
		err = encoder.WriteUint32(ix.Amount, bin.LE)
	default:
		err = fmt.Errorf("%w: unknown %s", ErrInvalidInstructionData, ix.Opcode)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewProvisionInstruction 建立 provision 指令
// 帳戶順序: [user (signer, writable), balance account (writable), system program]
func NewProvisionInstruction(programID, user solana.PublicKey) (solana.Instruction, error) {
	balanceAccount, bump, err := FindBalanceAddress(programID, user)
	if err != nil {
		return nil, err
	}
	data, err := Instruction{Opcode: OpcodeProvision, Bump: bump}.Encode()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(user, true, true),
		solana.NewAccountMeta(balanceAccount, true, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}, data), nil
}

// NewCreditInstruction 建立入帳指令，帳戶: [balance account (writable)]
func NewCreditInstruction(programID, user solana.PublicKey, amount uint32) (solana.Instruction, error) {
	return newBalanceInstruction(programID, user, OpcodeCredit, amount)
}

// NewDebitInstruction 建立扣款指令，帳戶: [balance account (writable)]
func NewDebitInstruction(programID, user solana.PublicKey, amount uint32) (solana.Instruction, error) {
	return newBalanceInstruction(programID, user, OpcodeDebit, amount)
}

func newBalanceInstruction(programID, user solana.PublicKey, op Opcode, amount uint32) (solana.Instruction, error) {
	balanceAccount, _, err := FindBalanceAddress(programID, user)
	if err != nil {
		return nil, err
	}
	data, err := Instruction{Opcode: op, Amount: amount}.Encode()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(balanceAccount, true, false),
	}, data), nil
}
