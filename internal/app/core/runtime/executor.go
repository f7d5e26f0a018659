package runtime

import (
	"bytes"
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/JoeShih716/go-balance-ledger/internal/app/core/domain"
	programdomain "github.com/JoeShih716/go-balance-ledger/internal/app/program/domain"
	"github.com/JoeShih716/go-balance-ledger/internal/app/program/usecase"
)

// NativeLoaderID 內建程式帳戶的 owner
var NativeLoaderID = solana.MustPublicKeyFromBase58("NativeLoader1111111111111111111111111111111")

// Executor 以註冊的程式執行交易
// 無狀態：帳戶狀態由呼叫端載入並傳入，結果由呼叫端決定是否寫入
type Executor struct {
	programs map[solana.PublicKey]usecase.Program
	rent     Rent
	logger   zerolog.Logger
}

// Option 設定 Executor
type Option func(*Executor)

// WithProgram 在 id 註冊程式
func WithProgram(id solana.PublicKey, program usecase.Program) Option {
	return func(e *Executor) {
		e.programs[id] = program
	}
}

// WithRent 覆寫租金參數
func WithRent(rent Rent) Option {
	return func(e *Executor) {
		e.rent = rent
	}
}

// WithLogger 設定 logger，程式日誌會以 debug 等級輸出
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor 建立 Executor，system program 一律註冊在 solana.SystemProgramID
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		programs: map[solana.PublicKey]usecase.Program{
			solana.SystemProgramID: SystemProgram{},
		},
		rent:   DefaultRent(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rent 回傳目前的租金參數
func (e *Executor) Rent() Rent {
	return e.rent
}

// IsProgram 判斷 key 是否為註冊的程式
func (e *Executor) IsProgram(key solana.PublicKey) bool {
	_, ok := e.programs[key]
	return ok
}

// Result 交易執行結果
//
// 結構:
//
//	Logs: 程式日誌，失敗時也會保留到失敗點為止的日誌
//	Changed: 交易成功時被修改的帳戶 (依 key 排序)
type Result struct {
	Logs    []string
	Changed []*domain.AccountSnapshot
}

// Execute 驗證簽名後依序執行所有指令
//
// 參數:
//
//	ctx: 上下文
//	tx: 交易
//	accounts: 已存在的帳戶狀態，沒有出現的 key 視為空的 system 帳戶
//
// 回傳:
//
//	*Result: 執行結果，一律非 nil
//	error: 任何錯誤都代表整筆交易不得寫入
func (e *Executor) Execute(ctx context.Context, tx *domain.Transaction, accounts map[solana.PublicKey]*domain.AccountSnapshot) (*Result, error) {
	result := &Result{}
	if len(tx.Instructions) == 0 {
		return result, domain.ErrEmptyTransaction
	}
	if err := tx.VerifySignatures(); err != nil {
		return result, err
	}

	keys := tx.AccountKeys()
	pre := make(map[solana.PublicKey]*domain.AccountSnapshot, len(keys))
	handles := make(map[solana.PublicKey]*programdomain.Account, len(keys))
	for _, key := range keys {
		snap := e.loadAccount(key, accounts)
		pre[key] = snap
		h := programdomain.NewAccount(snap.Key, snap.Owner, snap.Lamports, snap.Data)
		h.Executable = snap.Executable
		handles[key] = h
	}

	for i, ix := range tx.Instructions {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		list := instructionAccounts(ix, handles)
		before := make(map[solana.PublicKey]*domain.AccountSnapshot, len(list))
		for _, h := range list {
			before[h.Key] = snapshotOf(h)
		}
		if err := e.invoke(ctx, ix.ProgramID, list, ix.Data, 1, &result.Logs); err != nil {
			e.logger.Debug().Str("tx", tx.ID.String()).Int("instruction", i).Err(err).Msg("instruction failed")
			return result, &InstructionError{Index: i, Err: err}
		}
		if err := verifyReadonly(ix, before, handles); err != nil {
			return result, &InstructionError{Index: i, Err: err}
		}
	}

	changed, err := verifyChanges(tx, keys, pre, handles)
	if err != nil {
		return result, err
	}
	result.Changed = changed
	return result, nil
}

// loadAccount 取得帳戶初始狀態的複本
func (e *Executor) loadAccount(key solana.PublicKey, accounts map[solana.PublicKey]*domain.AccountSnapshot) *domain.AccountSnapshot {
	if snap, ok := accounts[key]; ok && snap != nil {
		return snap.Clone()
	}
	if e.IsProgram(key) {
		return &domain.AccountSnapshot{Key: key, Owner: NativeLoaderID, Lamports: 1, Executable: true}
	}
	return &domain.AccountSnapshot{Key: key, Owner: solana.SystemProgramID}
}

// invoke 執行單一程式呼叫，頂層指令 depth 為 1
func (e *Executor) invoke(ctx context.Context, programID solana.PublicKey, accounts []*programdomain.Account, data []byte, depth int, logs *[]string) error {
	program, ok := e.programs[programID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, programID)
	}

	*logs = append(*logs, fmt.Sprintf("Program %s invoke [%d]", programID, depth))
	ic := &invokeContext{
		executor:  e,
		programID: programID,
		depth:     depth,
		logs:      logs,
	}
	if err := program.Process(ctx, ic, accounts, data); err != nil {
		*logs = append(*logs, fmt.Sprintf("Program %s failed: %v", programID, err))
		return err
	}
	*logs = append(*logs, fmt.Sprintf("Program %s success", programID))
	return nil
}

// instructionAccounts 依指令的 meta 順序取出 handle，並設定這個指令的權限
func instructionAccounts(ix domain.Instruction, handles map[solana.PublicKey]*programdomain.Account) []*programdomain.Account {
	for _, meta := range ix.Accounts {
		h := handles[meta.PublicKey]
		h.IsSigner = false
		h.IsWritable = false
	}
	list := make([]*programdomain.Account, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		h := handles[meta.PublicKey]
		h.IsSigner = h.IsSigner || meta.IsSigner
		h.IsWritable = h.IsWritable || meta.IsWritable
		list[i] = h
	}
	return list
}

// verifyReadonly 確認指令沒有修改它標記為唯讀的帳戶
// 其他指令將同一個帳戶標記為可寫，不影響這個指令的權限
func verifyReadonly(ix domain.Instruction, before map[solana.PublicKey]*domain.AccountSnapshot, handles map[solana.PublicKey]*programdomain.Account) error {
	writable := make(map[solana.PublicKey]bool, len(ix.Accounts))
	for _, meta := range ix.Accounts {
		if meta.IsWritable {
			writable[meta.PublicKey] = true
		}
	}
	for key, snap := range before {
		if writable[key] {
			continue
		}
		if !sameAccount(snap, snapshotOf(handles[key])) {
			return fmt.Errorf("%w: %s", ErrReadonlyModified, key)
		}
	}
	return nil
}

// verifyChanges 比對交易前後的帳戶，回傳被修改的帳戶
func verifyChanges(tx *domain.Transaction, keys []solana.PublicKey, pre map[solana.PublicKey]*domain.AccountSnapshot, handles map[solana.PublicKey]*programdomain.Account) ([]*domain.AccountSnapshot, error) {
	var (
		changed         []*domain.AccountSnapshot
		sumPre, sumPost uint64
	)
	for _, key := range keys {
		before := pre[key]
		after := snapshotOf(handles[key])
		sumPre += before.Lamports
		sumPost += after.Lamports
		if sameAccount(before, after) {
			continue
		}
		if before.Executable {
			return nil, fmt.Errorf("%w: %s", ErrExecutableModified, key)
		}
		if !tx.IsWritable(key) {
			return nil, fmt.Errorf("%w: %s", ErrReadonlyModified, key)
		}
		changed = append(changed, after)
	}
	if sumPre != sumPost {
		return nil, fmt.Errorf("%w: %d before, %d after", ErrUnbalancedTransaction, sumPre, sumPost)
	}
	return changed, nil
}

func snapshotOf(h *programdomain.Account) *domain.AccountSnapshot {
	return &domain.AccountSnapshot{
		Key:        h.Key,
		Owner:      h.Owner,
		Lamports:   h.Lamports,
		Data:       h.Data(),
		Executable: h.Executable,
	}
}

func sameAccount(a, b *domain.AccountSnapshot) bool {
	return a.Owner.Equals(b.Owner) &&
		a.Lamports == b.Lamports &&
		a.Executable == b.Executable &&
		bytes.Equal(a.Data, b.Data)
}
