package domain

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Account 宿主在執行指令期間交給程式的帳戶 handle
//
// 結構:
//
//	Key: 帳戶地址
//	Owner: 擁有此帳戶的程式
//	Lamports: 帳戶持有的 lamports
//	IsSigner / IsWritable: 交易層級的權限
//	Executable: 是否為程式帳戶
//	data: 帳戶資料，只能透過 Borrow 存取
type Account struct {
	Key        solana.PublicKey
	Owner      solana.PublicKey
	Lamports   uint64
	IsSigner   bool
	IsWritable bool
	Executable bool

	data     []byte
	borrowed bool
}

func NewAccount(key, owner solana.PublicKey, lamports uint64, data []byte) *Account {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Account{
		Key:      key,
		Owner:    owner,
		Lamports: lamports,
		data:     buf,
	}
}

// DataLen 回傳帳戶資料長度
func (a *Account) DataLen() int {
	return len(a.data)
}

// Data 回傳帳戶資料的複本 (供宿主比對與持久化)
func (a *Account) Data() []byte {
	out := make([]byte, len(a.data))
	copy(out, a.data)
	return out
}

// Allocate 配置零值資料空間，只供宿主的 system program 使用
func (a *Account) Allocate(space int) error {
	if a.borrowed {
		return ErrAccountBorrowFailed
	}
	a.data = make([]byte, space)
	return nil
}

// Borrow 取得帳戶資料的獨佔存取
// 失敗路徑只需 Release，資料不會被修改；成功路徑呼叫 Commit 一次寫回
func (a *Account) Borrow() (*DataBorrow, error) {
	if a.borrowed {
		return nil, fmt.Errorf("%w: %s", ErrAccountBorrowFailed, a.Key)
	}
	a.borrowed = true
	return &DataBorrow{account: a, buf: a.Data()}, nil
}

// DataBorrow 帳戶資料的範圍性獨佔存取
type DataBorrow struct {
	account *Account
	buf     []byte
	done    bool
}

// Bytes 回傳借用期間的私有複本，修改不會影響帳戶
func (b *DataBorrow) Bytes() []byte {
	return b.buf
}

// Commit 將資料寫回帳戶並結束借用，只能呼叫一次
func (b *DataBorrow) Commit(data []byte) error {
	if b.done {
		return fmt.Errorf("%w: borrow already released", ErrAccountBorrowFailed)
	}
	if len(data) != len(b.account.data) {
		return fmt.Errorf("%w: commit of %d bytes into %d byte account", ErrInvalidAccountData, len(data), len(b.account.data))
	}
	copy(b.account.data, data)
	b.Release()
	return nil
}

// Release 結束借用而不寫回，可重複呼叫
func (b *DataBorrow) Release() {
	if b.done {
		return
	}
	b.done = true
	b.account.borrowed = false
}
