package domain

import (
	"bytes"
	"fmt"
	"slices"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// 編碼上限，避免解碼惡意資料時配置過大的記憶體
const (
	MaxInstructions        = 64
	MaxInstructionAccounts = 64
	MaxInstructionData     = 10 * 1024
	MaxSignatures          = 64
)

const (
	metaSigner   uint8 = 1 << 0
	metaWritable uint8 = 1 << 1
)

// Instruction 交易中的單一指令
type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []*solana.AccountMeta
	Data      []byte
}

// NewInstruction 由 solana-go 的指令 builder 轉換
func NewInstruction(ix solana.Instruction) (Instruction, error) {
	data, err := ix.Data()
	if err != nil {
		return Instruction{}, fmt.Errorf("encode instruction data: %w", err)
	}
	return Instruction{
		ProgramID: ix.ProgramID(),
		Accounts:  ix.Accounts(),
		Data:      data,
	}, nil
}

// Signature 簽名者與其對交易訊息的 ed25519 簽名
type Signature struct {
	Signer solana.PublicKey
	Value  solana.Signature
}

// Transaction 送進帳本的原子交易，所有指令全部成功才會寫入
//
// 結構:
//
//	ID: 冪等鍵，同一個 ID 只會被執行一次
//	Instructions: 依序執行的指令
//	Signatures: 每個簽名者對 Message() 的簽名
type Transaction struct {
	ID           uuid.UUID
	Instructions []Instruction
	Signatures   []Signature
}

// NewTransaction 以新的 ID 組裝交易
func NewTransaction(instructions ...Instruction) *Transaction {
	return &Transaction{
		ID:           uuid.New(),
		Instructions: instructions,
	}
}

// Message 回傳要被簽名的標準位元組 (ID + 指令)
func (t *Transaction) Message() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := t.encodeMessage(bin.NewBinEncoder(buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Sign 以私鑰簽名，每把 key 都必須是交易中的簽名者
func (t *Transaction) Sign(keys ...solana.PrivateKey) error {
	msg, err := t.Message()
	if err != nil {
		return err
	}
	signers := t.Signers()
	for _, key := range keys {
		pub := key.PublicKey()
		if !slices.Contains(signers, pub) {
			return fmt.Errorf("%w: %s", ErrUnexpectedSigner, pub)
		}
		sig, err := key.Sign(msg)
		if err != nil {
			return fmt.Errorf("sign with %s: %w", pub, err)
		}
		t.setSignature(pub, sig)
	}
	return nil
}

func (t *Transaction) setSignature(signer solana.PublicKey, sig solana.Signature) {
	for i := range t.Signatures {
		if t.Signatures[i].Signer.Equals(signer) {
			t.Signatures[i].Value = sig
			return
		}
	}
	t.Signatures = append(t.Signatures, Signature{Signer: signer, Value: sig})
}

// VerifySignatures 確認每個簽名者都有合法簽名，且沒有多餘的簽名
func (t *Transaction) VerifySignatures() error {
	msg, err := t.Message()
	if err != nil {
		return err
	}
	signers := t.Signers()
	for _, s := range t.Signatures {
		if !slices.Contains(signers, s.Signer) {
			return fmt.Errorf("%w: %s", ErrUnexpectedSigner, s.Signer)
		}
	}
	for _, signer := range signers {
		sig, ok := t.signatureOf(signer)
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingSignature, signer)
		}
		if !sig.Verify(signer, msg) {
			return fmt.Errorf("%w: %s", ErrInvalidSignature, signer)
		}
	}
	return nil
}

func (t *Transaction) signatureOf(signer solana.PublicKey) (solana.Signature, bool) {
	for _, s := range t.Signatures {
		if s.Signer.Equals(signer) {
			return s.Value, true
		}
	}
	return solana.Signature{}, false
}

// Signers 回傳所有簽名者，依 key 排序且不重複
func (t *Transaction) Signers() []solana.PublicKey {
	var keys []solana.PublicKey
	for _, ix := range t.Instructions {
		for _, meta := range ix.Accounts {
			if meta.IsSigner {
				keys = append(keys, meta.PublicKey)
			}
		}
	}
	return sortedUnique(keys)
}

// AccountKeys 回傳交易涉及的所有帳戶 (含程式)，依 key 排序且不重複
// 排序後的順序就是上鎖的順序，避免死鎖
func (t *Transaction) AccountKeys() []solana.PublicKey {
	var keys []solana.PublicKey
	for _, ix := range t.Instructions {
		keys = append(keys, ix.ProgramID)
		for _, meta := range ix.Accounts {
			keys = append(keys, meta.PublicKey)
		}
	}
	return sortedUnique(keys)
}

// IsWritable 任一指令將 key 標記為可寫
func (t *Transaction) IsWritable(key solana.PublicKey) bool {
	for _, ix := range t.Instructions {
		for _, meta := range ix.Accounts {
			if meta.IsWritable && meta.PublicKey.Equals(key) {
				return true
			}
		}
	}
	return false
}

// IsSigner 任一指令將 key 標記為簽名者
func (t *Transaction) IsSigner(key solana.PublicKey) bool {
	return slices.Contains(t.Signers(), key)
}

// MarshalBinary 編碼為傳輸/WAL 用的位元組
func (t *Transaction) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := t.encodeMessage(enc); err != nil {
		return nil, err
	}
	if len(t.Signatures) > MaxSignatures {
		return nil, fmt.Errorf("%w: %d signatures", ErrMalformedTransaction, len(t.Signatures))
	}
	if err := enc.WriteUint16(uint16(len(t.Signatures)), bin.LE); err != nil {
		return nil, err
	}
	for _, s := range t.Signatures {
		if err := enc.WriteBytes(s.Signer[:], false); err != nil {
			return nil, err
		}
		if err := enc.WriteBytes(s.Value[:], false); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary 解碼 MarshalBinary 的輸出，多餘的尾端資料視為錯誤
func (t *Transaction) UnmarshalBinary(data []byte) error {
	dec := bin.NewBinDecoder(data)
	var out Transaction
	if err := out.decode(dec); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedTransaction, err)
	}
	if dec.Remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedTransaction, dec.Remaining())
	}
	*t = out
	return nil
}

// DecodeTransaction 解碼交易
func DecodeTransaction(data []byte) (*Transaction, error) {
	tx := new(Transaction)
	if err := tx.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return tx, nil
}

func (t *Transaction) encodeMessage(enc *bin.Encoder) error {
	if len(t.Instructions) > MaxInstructions {
		return fmt.Errorf("%w: %d instructions", ErrMalformedTransaction, len(t.Instructions))
	}
	if err := enc.WriteBytes(t.ID[:], false); err != nil {
		return err
	}
	if err := enc.WriteUint16(uint16(len(t.Instructions)), bin.LE); err != nil {
		return err
	}
	for i, ix := range t.Instructions {
		if len(ix.Accounts) > MaxInstructionAccounts || len(ix.Data) > MaxInstructionData {
			return fmt.Errorf("%w: instruction %d exceeds limits", ErrMalformedTransaction, i)
		}
		if err := enc.WriteBytes(ix.ProgramID[:], false); err != nil {
			return err
		}
		if err := enc.WriteUint16(uint16(len(ix.Accounts)), bin.LE); err != nil {
			return err
		}
		for _, meta := range ix.Accounts {
			if err := enc.WriteBytes(meta.PublicKey[:], false); err != nil {
				return err
			}
			var flags uint8
			if meta.IsSigner {
				flags |= metaSigner
			}
			if meta.IsWritable {
				flags |= metaWritable
			}
			if err := enc.WriteUint8(flags); err != nil {
				return err
			}
		}
		if err := enc.WriteUint32(uint32(len(ix.Data)), bin.LE); err != nil {
			return err
		}
		if err := enc.WriteBytes(ix.Data, false); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transaction) decode(dec *bin.Decoder) error {
	id, err := dec.ReadBytes(len(t.ID))
	if err != nil {
		return err
	}
	copy(t.ID[:], id)

	n, err := dec.ReadUint16(bin.LE)
	if err != nil {
		return err
	}
	if int(n) > MaxInstructions {
		return fmt.Errorf("%d instructions", n)
	}
	t.Instructions = make([]Instruction, 0, n)
	for i := 0; i < int(n); i++ {
		ix, err := decodeInstruction(dec)
		if err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
		t.Instructions = append(t.Instructions, ix)
	}

	sigCount, err := dec.ReadUint16(bin.LE)
	if err != nil {
		return err
	}
	if int(sigCount) > MaxSignatures {
		return fmt.Errorf("%d signatures", sigCount)
	}
	for i := 0; i < int(sigCount); i++ {
		signer, err := readPublicKey(dec)
		if err != nil {
			return err
		}
		raw, err := dec.ReadBytes(len(solana.Signature{}))
		if err != nil {
			return err
		}
		s := Signature{Signer: signer}
		copy(s.Value[:], raw)
		t.Signatures = append(t.Signatures, s)
	}
	return nil
}

func decodeInstruction(dec *bin.Decoder) (Instruction, error) {
	var ix Instruction
	programID, err := readPublicKey(dec)
	if err != nil {
		return ix, err
	}
	ix.ProgramID = programID

	metaCount, err := dec.ReadUint16(bin.LE)
	if err != nil {
		return ix, err
	}
	if int(metaCount) > MaxInstructionAccounts {
		return ix, fmt.Errorf("%d accounts", metaCount)
	}
	for j := 0; j < int(metaCount); j++ {
		key, err := readPublicKey(dec)
		if err != nil {
			return ix, err
		}
		flags, err := dec.ReadUint8()
		if err != nil {
			return ix, err
		}
		if flags&^(metaSigner|metaWritable) != 0 {
			return ix, fmt.Errorf("unknown account flags %#x", flags)
		}
		ix.Accounts = append(ix.Accounts, solana.NewAccountMeta(key, flags&metaWritable != 0, flags&metaSigner != 0))
	}

	dataLen, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return ix, err
	}
	if dataLen > MaxInstructionData {
		return ix, fmt.Errorf("%d bytes of instruction data", dataLen)
	}
	data, err := dec.ReadBytes(int(dataLen))
	if err != nil {
		return ix, err
	}
	ix.Data = append([]byte{}, data...)
	return ix, nil
}

func readPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	raw, err := dec.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(raw), nil
}

func sortedUnique(keys []solana.PublicKey) []solana.PublicKey {
	slices.SortFunc(keys, func(a, b solana.PublicKey) int {
		return bytes.Compare(a[:], b[:])
	})
	return slices.Compact(keys)
}
