package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-balance-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-balance-ledger/internal/app/core/runtime"
	"github.com/JoeShih716/go-balance-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-balance-ledger/pkg/mysql"
)

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	Pubkey     []byte `gorm:"column:pubkey;type:binary(32);primaryKey"`
	Owner      []byte `gorm:"type:binary(32);not null"`
	Lamports   uint64
	Data       []byte `gorm:"type:mediumblob"`
	Executable bool
	UpdatedAt  int64 `gorm:"autoUpdateTime:milli"` // 自動更新時間
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

// sqlTransaction 對應資料庫的 transactions 表
type sqlTransaction struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	RefID           []byte `gorm:"column:ref_id;type:binary(16);uniqueIndex"` // 對應 domain.Transaction.ID
	Payload         []byte `gorm:"type:blob"`                                 // 交易的二進位編碼
	ChangedAccounts int
	CreatedAt       int64 `gorm:"autoCreateTime:milli"` // 自動寫入時間
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

// MySQLLedger 以 MySQL 為狀態儲存的帳本
// 每筆交易對應一個資料庫 transaction，可寫帳戶以 SELECT ... FOR UPDATE 鎖定
type MySQLLedger struct {
	client   *mysql.Client
	executor *runtime.Executor
	logger   zerolog.Logger
}

func NewMySQLLedger(client *mysql.Client, executor *runtime.Executor, logger zerolog.Logger) *MySQLLedger {
	return &MySQLLedger{
		client:   client,
		executor: executor,
		logger:   logger,
	}
}

// Migrate 建立 accounts 與 transactions 表
func (ledger *MySQLLedger) Migrate(ctx context.Context) error {
	return ledger.client.Migrate(ctx, &sqlAccount{}, &sqlTransaction{})
}

// Seed 寫入初始帳戶，已存在的帳戶不會被覆蓋
func (ledger *MySQLLedger) Seed(ctx context.Context, accounts map[solana.PublicKey]*domain.AccountSnapshot) error {
	if len(accounts) == 0 {
		return nil
	}
	rows := make([]sqlAccount, 0, len(accounts))
	for _, acc := range accounts {
		rows = append(rows, fromSnapshot(acc))
	}
	return ledger.client.DB().WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

// ProcessTransaction 在單一資料庫 transaction 內執行交易
//
// 參數:
//
//	ctx: 上下文
//	t: 交易
//
// 回傳:
//
//	*domain.Receipt: 執行結果
//	error: 處理錯誤，資料庫 transaction 會 rollback
func (ledger *MySQLLedger) ProcessTransaction(ctx context.Context, t *domain.Transaction) (*domain.Receipt, error) {
	receipt := &domain.Receipt{TransactionID: t.ID}

	err := ledger.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先檢查是否有這筆交易記錄
		var existing sqlTransaction
		err := tx.Where("ref_id = ?", t.ID[:]).Take(&existing).Error
		if err == nil {
			receipt.Duplicate = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			ledger.logger.Error().Err(err).Str("tx", t.ID.String()).Msg("select transaction failed")
			return fmt.Errorf("%w: %w", domain.ErrSelectTransactionFailed, err)
		}

		// 悲觀鎖：可寫帳戶 FOR UPDATE，唯讀帳戶 FOR SHARE，依 key 排序
		writable, readonly := ledger.partitionKeys(t)
		accounts := make(map[solana.PublicKey]*domain.AccountSnapshot, len(writable)+len(readonly))
		if err := lockRows(tx, clause.LockingStrengthUpdate, writable, accounts); err != nil {
			return err
		}
		if err := lockRows(tx, clause.LockingStrengthShare, readonly, accounts); err != nil {
			return err
		}

		res, err := ledger.executor.Execute(ctx, t, accounts)
		receipt.Logs = res.Logs
		if err != nil {
			return err
		}

		// 更新資料庫
		if len(res.Changed) > 0 {
			changed := make([]sqlAccount, 0, len(res.Changed))
			for _, acc := range res.Changed {
				changed = append(changed, fromSnapshot(acc))
				receipt.Changed = append(receipt.Changed, acc.Key)
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&changed).Error; err != nil {
				return err
			}
		}

		// 建立交易紀錄
		payload, err := t.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Create(&sqlTransaction{
			RefID:           t.ID[:],
			Payload:         payload,
			ChangedAccounts: len(res.Changed),
		}).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// 同一筆交易被同時送出，另一個請求已先提交
		ledger.logger.Debug().Str("tx", t.ID.String()).Msg("transaction committed concurrently")
		return &domain.Receipt{TransactionID: t.ID, Duplicate: true}, nil
	}
	if err != nil {
		receipt.Changed = nil
		return receipt, err
	}
	return receipt, nil
}

// partitionKeys 將交易涉及的帳戶分為可寫與唯讀 (皆已排序)
// 註冊的程式帳戶由執行器提供，不在資料表中，不需鎖定
func (ledger *MySQLLedger) partitionKeys(t *domain.Transaction) (writable, readonly []solana.PublicKey) {
	for _, key := range t.AccountKeys() {
		switch {
		case t.IsWritable(key):
			writable = append(writable, key)
		case ledger.executor.IsProgram(key):
		default:
			readonly = append(readonly, key)
		}
	}
	return writable, readonly
}

// lockRows 以 strength 鎖定 keys 對應的資料列，存在的帳戶寫入 out
func lockRows(tx *gorm.DB, strength string, keys []solana.PublicKey, out map[solana.PublicKey]*domain.AccountSnapshot) error {
	if len(keys) == 0 {
		return nil
	}
	var rows []sqlAccount
	if err := tx.Clauses(clause.Locking{Strength: strength}).
		Where("pubkey IN ?", keyBytes(keys)).
		Order("pubkey").
		Find(&rows).Error; err != nil {
		return err
	}
	for i := range rows {
		snap := toSnapshot(&rows[i])
		out[snap.Key] = snap
	}
	return nil
}

// GetAccount 取得帳戶
func (ledger *MySQLLedger) GetAccount(ctx context.Context, key solana.PublicKey) (*domain.AccountSnapshot, error) {
	var row sqlAccount
	err := ledger.client.DB().WithContext(ctx).Where("pubkey = ?", key[:]).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return toSnapshot(&row), nil
}

// LoadAllAccounts 載入所有帳戶，供記憶體帳本啟動時使用
func (ledger *MySQLLedger) LoadAllAccounts(ctx context.Context) (map[solana.PublicKey]*domain.AccountSnapshot, error) {
	var rows []sqlAccount
	if err := ledger.client.DB().WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[solana.PublicKey]*domain.AccountSnapshot, len(rows))
	for i := range rows {
		snap := toSnapshot(&rows[i])
		out[snap.Key] = snap
	}
	return out, nil
}

// IsProcessed 查詢交易是否已提交
func (ledger *MySQLLedger) IsProcessed(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := ledger.client.DB().WithContext(ctx).Model(&sqlTransaction{}).Where("ref_id = ?", id[:]).Count(&count).Error
	return count > 0, err
}

func toSnapshot(row *sqlAccount) *domain.AccountSnapshot {
	return &domain.AccountSnapshot{
		Key:        solana.PublicKeyFromBytes(row.Pubkey),
		Owner:      solana.PublicKeyFromBytes(row.Owner),
		Lamports:   row.Lamports,
		Data:       row.Data,
		Executable: row.Executable,
	}
}

func fromSnapshot(acc *domain.AccountSnapshot) sqlAccount {
	return sqlAccount{
		Pubkey:     acc.Key.Bytes(),
		Owner:      acc.Owner.Bytes(),
		Lamports:   acc.Lamports,
		Data:       acc.Data,
		Executable: acc.Executable,
	}
}

func keyBytes(keys []solana.PublicKey) [][]byte {
	out := make([][]byte, len(keys))
	for i, key := range keys {
		out[i] = key.Bytes()
	}
	return out
}

var _ usecase.Ledger = (*MySQLLedger)(nil)
