package mysql

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Client 封裝 GORM DB 實例
type Client struct {
	db *gorm.DB
}

// NewClient 建立並回傳一個新的 MySQL 客戶端實例 (GORM)
//
// 參數:
//
//	ctx: 取消時停止重試
//	cfg: MySQL 連線配置
//	log: 連線重試與 SQL log 的輸出
//
// 回傳值:
//
//	*Client: 封裝後的 MySQL 客戶端
//	error: 若連線失敗則回傳錯誤
func NewClient(ctx context.Context, cfg Config, log zerolog.Logger) (*Client, error) {
	cfg.SetDefaults()
	gormConfig := newGormConfig(cfg, log)

	var db *gorm.DB
	var err error
	for i := 0; i < cfg.MaxRetries; i++ {
		db, err = open(ctx, cfg, gormConfig)
		if err == nil {
			break
		}
		if i < cfg.MaxRetries-1 {
			log.Warn().Err(err).Int("attempt", i+1).Int("max", cfg.MaxRetries).Dur("retry_in", cfg.RetryInterval).Msg("failed to connect to mysql")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.RetryInterval):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql after %d attempts: %w", cfg.MaxRetries, err)
	}

	// 取得底層 sql.DB 物件以設定連線池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.db: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Client{db: db}, nil
}

// NewClientWithConn 以既有的連線建立客戶端，不重試也不調整連線池
// 用於測試 (如 sqlmock) 或由呼叫端自行管理 *sql.DB 的情境
func NewClientWithConn(conn gorm.ConnPool, cfg Config, log zerolog.Logger) (*Client, error) {
	cfg.SetDefaults()
	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      conn,
		SkipInitializeWithVersion: true,
	}), newGormConfig(cfg, log))
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

func newGormConfig(cfg Config, log zerolog.Logger) *gorm.Config {
	return &gorm.Config{
		// 預設跳過事務模式，需要原子性的地方明確使用 Transaction
		SkipDefaultTransaction: true,
		// 將 MySQL 錯誤碼轉為 gorm 錯誤 (如 1062 -> gorm.ErrDuplicatedKey)
		TranslateError: true,
		Logger:         newLogger(cfg.LogLevel, log),
	}
}

func open(ctx context.Context, cfg Config, gormConfig *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, err
	}
	rawDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := rawDB.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// DB 回傳底層的 *gorm.DB 實例，供業務邏輯層使用
func (c *Client) DB() *gorm.DB {
	return c.db
}

// Migrate 建立或更新資料表
func (c *Client) Migrate(ctx context.Context, models ...any) error {
	return c.db.WithContext(ctx).AutoMigrate(models...)
}

// Close 關閉資料庫連線
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// zerologWriter 讓 GORM 的 logger 輸出到 zerolog
type zerologWriter struct {
	log zerolog.Logger
}

func (w zerologWriter) Printf(format string, args ...any) {
	w.log.Info().Msgf(format, args...)
}

// newLogger 根據配置建立 GORM Logger
func newLogger(level string, log zerolog.Logger) logger.Interface {
	return logger.New(zerologWriter{log: log}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  parseLogLevel(level),
		IgnoreRecordNotFoundError: true,
	})
}

func parseLogLevel(level string) logger.LogLevel {
	switch level {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Error // 預設只記錄錯誤
	}
}
