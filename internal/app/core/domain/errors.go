package domain

import "errors"

var (
	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionAlreadyProcessed 交易已處理
	ErrTransactionAlreadyProcessed = errors.New("transaction already processed")

	// ErrSelectTransactionFailed 查詢交易失敗
	ErrSelectTransactionFailed = errors.New("select transaction failed")

	// ErrWALWriteFailed 寫入 WAL 失敗
	ErrWALWriteFailed = errors.New("wal write failed")

	// ErrLedgerClosed 帳本已停止接收交易
	ErrLedgerClosed = errors.New("ledger closed")

	// ErrEmptyTransaction 交易沒有任何指令
	ErrEmptyTransaction = errors.New("transaction has no instructions")

	// ErrMalformedTransaction 交易編碼錯誤
	ErrMalformedTransaction = errors.New("malformed transaction")

	// ErrMissingSignature 簽名者沒有提供簽名
	ErrMissingSignature = errors.New("missing required signature")

	// ErrInvalidSignature 簽名驗證失敗
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrUnexpectedSigner 提供簽名的 key 不是交易的簽名者
	ErrUnexpectedSigner = errors.New("key is not a signer of this transaction")
)
