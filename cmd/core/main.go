package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/reflection"

	grpc_adapter "github.com/JoeShih716/go-balance-ledger/internal/app/core/adapter/in/grpc"
	memory_adapter "github.com/JoeShih716/go-balance-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-balance-ledger/internal/app/core/adapter/out/mysql"
	"github.com/JoeShih716/go-balance-ledger/internal/app/core/runtime"
	"github.com/JoeShih716/go-balance-ledger/internal/app/core/usecase"
	programusecase "github.com/JoeShih716/go-balance-ledger/internal/app/program/usecase"
	grpcpkg "github.com/JoeShih716/go-balance-ledger/pkg/grpc"
	"github.com/JoeShih716/go-balance-ledger/pkg/logger"
	"github.com/JoeShih716/go-balance-ledger/pkg/metrics"
	"github.com/JoeShih716/go-balance-ledger/pkg/mysql"
	"github.com/JoeShih716/go-balance-ledger/pkg/wal"
	pb "github.com/JoeShih716/go-balance-ledger/proto"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// 1. 載入設定
	cfg, err := loadConfig(*configPath)
	if err != nil {
		l := logger.New("core", "info")
		l.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New("core", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 指標
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 3. 執行環境: system program + 餘額程式
	programID := cfg.Program.Key
	executor := runtime.NewExecutor(
		runtime.WithProgram(programID, programusecase.NewBalanceProgram()),
		runtime.WithLogger(logger.New("runtime", cfg.Log.Level)),
	)

	// 4. 建立帳本
	ledger, cleanup, err := newLedger(ctx, cfg, executor, log, m)
	if err != nil {
		log.Fatal().Err(err).Str("ledger", string(cfg.Ledger.Type)).Msg("failed to init ledger")
	}
	defer cleanup()

	// 5. UseCase 與 gRPC Adapter
	coreUseCase := usecase.NewCoreUseCase(ledger, string(cfg.Ledger.Type), programID, log, m)
	s := grpcpkg.NewServer(logger.New("rpc", cfg.Log.Level), m)
	pb.RegisterLedgerServiceServer(s, grpc_adapter.NewGrpcServer(coreUseCase))
	reflection.Register(s)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Server.GRPCAddr).Msg("failed to listen")
	}
	go func() {
		log.Info().Str("addr", cfg.Server.GRPCAddr).Str("program", programID.String()).Msg("starting gRPC server")
		if err := s.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server stopped")
			stop()
		}
	}()

	// 6. /metrics
	var metricsServer *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsServer = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info().Str("addr", cfg.Server.MetricsAddr).Msg("starting metrics server")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	// Graceful Shutdown
	<-ctx.Done()
	log.Info().Msg("shutting down server")

	s.GracefulStop()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown")
		}
	}
	log.Info().Msg("server exited")
}

// newLedger 依設定建立帳本
//
// 回傳:
//
//	usecase.Ledger: 帳本
//	func(): 關閉時釋放資源 (WAL、DB 連線)，必須在 gRPC server 停止後呼叫
//	error: 初始化錯誤
func newLedger(ctx context.Context, cfg Config, executor *runtime.Executor, log zerolog.Logger, m *metrics.Metrics) (usecase.Ledger, func(), error) {
	genesis, err := cfg.genesisAccounts()
	if err != nil {
		return nil, nil, err
	}

	var (
		closers   []func() error
		sqlLedger *mysql_adapter.MySQLLedger
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn().Err(err).Msg("cleanup failed")
			}
		}
	}

	if cfg.Ledger.Type == LedgerTypeMySQL || cfg.Ledger.LoadFromMySQL {
		client, err := mysql.NewClient(ctx, cfg.MySQL, logger.New("mysql", cfg.Log.Level))
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, client.Close)
		log.Info().Str("host", cfg.MySQL.Host).Msg("connected to MySQL")

		sqlLedger = mysql_adapter.NewMySQLLedger(client, executor, logger.New("ledger", cfg.Log.Level))
		if err := sqlLedger.Migrate(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		if err := sqlLedger.Seed(ctx, genesis); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	if cfg.Ledger.Type == LedgerTypeMySQL {
		return sqlLedger, cleanup, nil
	}

	if sqlLedger != nil {
		accounts, err := sqlLedger.LoadAllAccounts(ctx)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		log.Info().Int("accounts", len(accounts)).Msg("loaded accounts from MySQL")
		genesis = accounts
	}

	// 初始化 WAL
	walFile, err := wal.NewWAL(cfg.Ledger.WALPath)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, walFile.Close)

	opts := []memory_adapter.Option{
		memory_adapter.WithLogger(logger.New("ledger", cfg.Log.Level)),
		memory_adapter.WithMetrics(m),
	}

	switch cfg.Ledger.Type {
	case LedgerTypeMutex:
		mutexLedger, err := memory_adapter.NewMutexLedger(executor, genesis, walFile, opts...)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		return mutexLedger, cleanup, nil
	default:
		lmaxLedger, err := memory_adapter.NewLMAXLedger(executor, genesis, walFile, opts...)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		// 核心迴圈在 ctx 取消後處理完佇列才結束，WAL 要等它結束才能關閉
		lmaxLedger.Start(ctx)
		closers = append(closers, func() error {
			<-lmaxLedger.Done()
			return nil
		})
		return lmaxLedger, cleanup, nil
	}
}
