package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 帳本節點的 Prometheus 指標
type Metrics struct {
	// 交易處理
	TransactionsProcessed *prometheus.CounterVec
	TransactionsRejected  *prometheus.CounterVec
	TransactionDuration   *prometheus.HistogramVec
	AccountsCommitted     prometheus.Counter

	// 持久化
	WALAppends prometheus.Counter
	WALErrors  prometheus.Counter
	Replayed   prometheus.Counter

	// RPC
	RPCRequests *prometheus.CounterVec
}

// New 建立並註冊所有指標
//
// 參數:
//
//	reg: 註冊的目標，nil 時使用 prometheus.DefaultRegisterer
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	latencyBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.1,
	}

	return &Metrics{
		TransactionsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "balance_ledger_transactions_processed_total",
			Help: "Transactions committed by the ledger",
		}, []string{"ledger"}),

		TransactionsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "balance_ledger_transactions_rejected_total",
			Help: "Transactions rejected (signature, program error, duplicate)",
		}, []string{"ledger", "reason"}),

		TransactionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "balance_ledger_transaction_duration_seconds",
			Help:    "Time to execute and commit one transaction",
			Buckets: latencyBuckets,
		}, []string{"ledger"}),

		AccountsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "balance_ledger_accounts_committed_total",
			Help: "Account states written by committed transactions",
		}),

		WALAppends: factory.NewCounter(prometheus.CounterOpts{
			Name: "balance_ledger_wal_appends_total",
			Help: "Records appended to the write-ahead log",
		}),

		WALErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "balance_ledger_wal_errors_total",
			Help: "Write-ahead log append or flush failures",
		}),

		Replayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "balance_ledger_wal_replayed_total",
			Help: "Transactions replayed from the write-ahead log on startup",
		}),

		RPCRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "balance_ledger_rpc_requests_total",
			Help: "RPC requests by method and status code",
		}, []string{"method", "code"}),
	}
}

// NewNop 建立註冊在獨立 registry 的指標，不會與全域 registry 衝突
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
