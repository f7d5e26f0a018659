package memory

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/JoeShih716/go-balance-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-balance-ledger/internal/app/core/runtime"
	"github.com/JoeShih716/go-balance-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-balance-ledger/pkg/wal"
)

// transactionResult 核心迴圈回傳給呼叫端的結果
type transactionResult struct {
	receipt *domain.Receipt
	err     error
}

// transactionRequest 交易請求包裝channel，讓ProcessTransaction可以等待結果
type transactionRequest struct {
	ctx    context.Context
	tx     *domain.Transaction
	result chan transactionResult
}

// LMAXLedger 單一 goroutine 依序處理所有交易的帳本
type LMAXLedger struct {
	store *accountStore
	// 輸送帶 負責接收交易
	transactionChan chan *transactionRequest
	// Pool 減少 GC 壓力
	requestPool sync.Pool
	// 核心迴圈結束後關閉
	done chan struct{}
}

// NewLMAXLedger 建立一個新的 LMAXLedger 實例，需呼叫 Start 才會開始處理交易
//
// 參數:
//
//	executor: 交易執行器
//	accounts: 初始帳戶資料 Map
//	w: Write-Ahead Log 實例，nil 表示不持久化
//
// 回傳:
//
//	*LMAXLedger: LMAXLedger 實例
//	error: 初始化錯誤
func NewLMAXLedger(executor *runtime.Executor, accounts map[solana.PublicKey]*domain.AccountSnapshot, w *wal.WAL, opts ...Option) (*LMAXLedger, error) {
	ledger := &LMAXLedger{
		store:           newAccountStore(executor, accounts, w, buildOptions(opts)),
		transactionChan: make(chan *transactionRequest, 1000), // Buffer 1000
		requestPool: sync.Pool{
			New: func() any {
				return &transactionRequest{
					result: make(chan transactionResult, 1),
				}
			},
		},
		done: make(chan struct{}),
	}

	// 在啟動前先恢復資料
	if err := ledger.store.recoverFromWAL(); err != nil {
		return nil, err
	}
	return ledger, nil
}

// Start 啟動核心引擎 (非同步)，ctx 取消後處理完佇列中的交易才結束
func (l *LMAXLedger) Start(ctx context.Context) {
	go l.run(ctx)
}

// Done 核心迴圈結束後關閉
func (l *LMAXLedger) Done() <-chan struct{} {
	return l.done
}

func (l *LMAXLedger) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			// 收到關閉信號，把剩下的交易處理完
			l.drain()
			return
		case req := <-l.transactionChan:
			l.processRequest(req)
		}
	}
}

func (l *LMAXLedger) drain() {
	for {
		select {
		case req := <-l.transactionChan:
			l.processRequest(req)
		default:
			return
		}
	}
}

// processRequest 處理單筆交易並回傳結果
func (l *LMAXLedger) processRequest(req *transactionRequest) {
	receipt, err := l.store.process(req.ctx, req.tx)
	req.result <- transactionResult{receipt: receipt, err: err}
}

// ProcessTransaction 接收交易請求
//
// ProcessTransaction(等待) -> Channel -> Run Loop (核心) -> WAL -> Map Update -> Result Channel -> ProcessTransaction(收到結果)
func (l *LMAXLedger) ProcessTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Receipt, error) {
	req := l.requestPool.Get().(*transactionRequest)
	req.ctx = ctx
	req.tx = tx

	select {
	case l.transactionChan <- req:
	case <-l.done:
		l.release(req)
		return nil, domain.ErrLedgerClosed
	case <-ctx.Done():
		l.release(req)
		return nil, ctx.Err()
	}

	select {
	case res := <-req.result:
		l.release(req)
		return res.receipt, res.err
	case <-l.done:
		// 迴圈結束前可能已經處理完這筆
		select {
		case res := <-req.result:
			l.release(req)
			return res.receipt, res.err
		default:
			return nil, domain.ErrLedgerClosed
		}
	}
}

func (l *LMAXLedger) release(req *transactionRequest) {
	req.ctx = nil
	req.tx = nil
	l.requestPool.Put(req)
}

// GetAccount 取得指定帳戶的當前狀態
func (l *LMAXLedger) GetAccount(ctx context.Context, key solana.PublicKey) (*domain.AccountSnapshot, error) {
	return l.store.get(key)
}

// LoadAllAccounts 載入系統所有帳戶資料的複本
func (l *LMAXLedger) LoadAllAccounts(ctx context.Context) (map[solana.PublicKey]*domain.AccountSnapshot, error) {
	return l.store.all(), nil
}

var _ usecase.Ledger = (*LMAXLedger)(nil)
