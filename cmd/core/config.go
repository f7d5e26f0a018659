package main

import (
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-balance-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-balance-ledger/pkg/mysql"
)

// LedgerType 帳本實作
type LedgerType string

const (
	LedgerTypeMySQL LedgerType = "mysql" // Level 0: 每筆交易一個 DB Transaction
	LedgerTypeMutex LedgerType = "mutex" // Level 1: 記憶體 + 帳戶鎖
	LedgerTypeLMAX  LedgerType = "lmax"  // Level 2: 記憶體 + 單一寫入者
)

type Config struct {
	Server  ServerConfig     `yaml:"server"`
	Ledger  LedgerConfig     `yaml:"ledger"`
	Program ProgramConfig    `yaml:"program"`
	Genesis []GenesisAccount `yaml:"genesis"`
	MySQL   mysql.Config     `yaml:"mysql"`
	Log     LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"` // 空字串表示不開啟 /metrics
}

type LedgerConfig struct {
	Type    LedgerType `yaml:"type"`
	WALPath string     `yaml:"wal_path"`
	// LoadFromMySQL 記憶體帳本啟動時從 MySQL 載入帳戶，取代 genesis 區段
	LoadFromMySQL bool `yaml:"load_from_mysql"`
}

type ProgramConfig struct {
	ID string `yaml:"id"` // 餘額程式地址 (base58)

	// Key 由 loadConfig 解析 ID 後填入
	Key solana.PublicKey `yaml:"-"`
}

// GenesisAccount 啟動時預先存入 lamports 的 system 帳戶
type GenesisAccount struct {
	Address  string `yaml:"address"`
	Lamports uint64 `yaml:"lamports"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// loadConfig 讀取 yaml 設定檔並補全預設值
func loadConfig(path string) (Config, error) {
	cfgData, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = ":50051"
	}
	if c.Ledger.Type == "" {
		c.Ledger.Type = LedgerTypeMutex
	}
	if c.Ledger.WALPath == "" {
		c.Ledger.WALPath = "wal.log"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.MySQL.SetDefaults()
}

func (c *Config) validate() error {
	switch c.Ledger.Type {
	case LedgerTypeMySQL, LedgerTypeMutex, LedgerTypeLMAX:
	default:
		return fmt.Errorf("invalid ledger type %q", c.Ledger.Type)
	}
	id, err := solana.PublicKeyFromBase58(c.Program.ID)
	if err != nil {
		return fmt.Errorf("invalid program id %q: %w", c.Program.ID, err)
	}
	c.Program.Key = id
	_, err = c.genesisAccounts()
	return err
}

// genesisAccounts 將 genesis 區段轉為 system 帳戶快照
func (c *Config) genesisAccounts() (map[solana.PublicKey]*domain.AccountSnapshot, error) {
	accounts := make(map[solana.PublicKey]*domain.AccountSnapshot, len(c.Genesis))
	for _, g := range c.Genesis {
		key, err := solana.PublicKeyFromBase58(g.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid genesis address %q: %w", g.Address, err)
		}
		if _, ok := accounts[key]; ok {
			return nil, fmt.Errorf("duplicate genesis address %s", key)
		}
		accounts[key] = &domain.AccountSnapshot{
			Key:      key,
			Owner:    solana.SystemProgramID,
			Lamports: g.Lamports,
		}
	}
	return accounts, nil
}
