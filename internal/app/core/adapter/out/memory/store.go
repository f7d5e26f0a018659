package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/JoeShih716/go-balance-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-balance-ledger/internal/app/core/runtime"
	"github.com/JoeShih716/go-balance-ledger/pkg/metrics"
	"github.com/JoeShih716/go-balance-ledger/pkg/wal"
)

// walRecord WAL 中的一筆已提交交易
type walRecord struct {
	ID          uuid.UUID `json:"id"`
	Tx          []byte    `json:"tx"`
	CommittedAt int64     `json:"committed_at"`
}

// Option 設定記憶體帳本
type Option func(*options)

type options struct {
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// WithLogger 設定 logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics 設定指標
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.NewNop()
	}
	return o
}

// accountStore 兩種記憶體帳本共用的狀態
//
// 結構:
//
//	accounts: 帳戶資料 Map
//	processed: 已處理過的交易
//	mu: 保護 Map 本身，帳戶層級的互斥由呼叫端負責
type accountStore struct {
	mu        sync.RWMutex
	accounts  map[solana.PublicKey]*domain.AccountSnapshot
	processed map[uuid.UUID]time.Time

	executor *runtime.Executor
	wal      *wal.WAL
	opts     options
}

func newAccountStore(executor *runtime.Executor, accounts map[solana.PublicKey]*domain.AccountSnapshot, w *wal.WAL, opts options) *accountStore {
	copied := make(map[solana.PublicKey]*domain.AccountSnapshot, len(accounts))
	for key, acc := range accounts {
		copied[key] = acc.Clone()
	}
	return &accountStore{
		accounts:  copied,
		processed: make(map[uuid.UUID]time.Time),
		executor:  executor,
		wal:       w,
		opts:      opts,
	}
}

// load 取得 keys 中已存在帳戶的複本
func (s *accountStore) load(keys []solana.PublicKey) map[solana.PublicKey]*domain.AccountSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[solana.PublicKey]*domain.AccountSnapshot, len(keys))
	for _, key := range keys {
		if acc, ok := s.accounts[key]; ok {
			out[key] = acc.Clone()
		}
	}
	return out
}

func (s *accountStore) get(key solana.PublicKey) (*domain.AccountSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, key)
	}
	return acc.Clone(), nil
}

func (s *accountStore) all() map[solana.PublicKey]*domain.AccountSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[solana.PublicKey]*domain.AccountSnapshot, len(s.accounts))
	for key, acc := range s.accounts {
		out[key] = acc.Clone()
	}
	return out
}

func (s *accountStore) isProcessed(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processed[id]
	return ok
}

// commit 寫入交易結果並標記為已處理
func (s *accountStore) commit(id uuid.UUID, changed []*domain.AccountSnapshot, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range changed {
		s.accounts[acc.Key] = acc
	}
	s.processed[id] = at
}

// process 執行交易的核心流程
// 冪等檢查 -> 執行 -> 寫入 WAL (Critical Path) -> 更新 Map
// 呼叫端必須確保同一組帳戶不會被同時處理
func (s *accountStore) process(ctx context.Context, tx *domain.Transaction) (*domain.Receipt, error) {
	if s.isProcessed(tx.ID) {
		return &domain.Receipt{TransactionID: tx.ID, Duplicate: true}, nil
	}

	res, err := s.executor.Execute(ctx, tx, s.load(tx.AccountKeys()))
	receipt := &domain.Receipt{TransactionID: tx.ID, Logs: res.Logs}
	if err != nil {
		return receipt, err
	}

	now := time.Now()
	if s.wal != nil {
		if err := s.appendWAL(tx, now); err != nil {
			s.opts.metrics.WALErrors.Inc()
			s.opts.logger.Error().Err(err).Str("tx", tx.ID.String()).Msg("wal append failed")
			return receipt, fmt.Errorf("%w: %w", domain.ErrWALWriteFailed, err)
		}
		s.opts.metrics.WALAppends.Inc()
	}

	s.commit(tx.ID, res.Changed, now)
	for _, acc := range res.Changed {
		receipt.Changed = append(receipt.Changed, acc.Key)
	}
	return receipt, nil
}

func (s *accountStore) appendWAL(tx *domain.Transaction, at time.Time) error {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return err
	}
	return s.wal.Append(walRecord{ID: tx.ID, Tx: raw, CommittedAt: at.UnixNano()})
}

// recoverFromWAL 從 WAL 檔案恢復帳本狀態
// 只在建構時呼叫 (單執行緒)，重新執行每一筆已提交的交易
func (s *accountStore) recoverFromWAL() error {
	if s.wal == nil {
		return nil
	}
	var history []walRecord
	err := s.wal.ReadAll(func(jsonRaw []byte) error {
		var rec walRecord
		if err := json.Unmarshal(jsonRaw, &rec); err != nil {
			return err
		}
		history = append(history, rec)
		return nil
	})
	if err != nil {
		return fmt.Errorf("read wal: %w", err)
	}

	for _, rec := range history {
		if err := s.replay(rec); err != nil {
			return fmt.Errorf("replay transaction %s: %w", rec.ID, err)
		}
		s.opts.metrics.Replayed.Inc()
	}
	if len(history) > 0 {
		s.opts.logger.Info().Int("transactions", len(history)).Msg("recovered ledger state from wal")
	}
	return nil
}

// replay 重新執行單筆交易 (不寫 WAL)
func (s *accountStore) replay(rec walRecord) error {
	if _, ok := s.processed[rec.ID]; ok {
		return nil
	}
	tx, err := domain.DecodeTransaction(rec.Tx)
	if err != nil {
		return err
	}
	res, err := s.executor.Execute(context.Background(), tx, s.load(tx.AccountKeys()))
	if err != nil {
		return err
	}
	s.commit(tx.ID, res.Changed, time.Unix(0, rec.CommittedAt))
	return nil
}
