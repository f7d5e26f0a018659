package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	grpc_adapter "github.com/JoeShih716/go-balance-ledger/internal/app/core/adapter/in/grpc"
	grpcpkg "github.com/JoeShih716/go-balance-ledger/pkg/grpc"
	"github.com/JoeShih716/go-balance-ledger/pkg/logger"
)

// app 所有子命令共用的旗標與連線
type app struct {
	node      string
	keypair   string
	programID string
	logLevel  string
	timeout   time.Duration

	dialOpts []grpc.DialOption
	pool     *grpcpkg.Pool
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "balancectl",
		Short:         "Balance ledger client",
		Long:          "Command line client for creating, crediting, debiting and inspecting balance accounts on a ledger node.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.pool != nil {
				return a.pool.Close()
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.node, "node", "localhost:50051", "Ledger node gRPC address")
	flags.StringVar(&a.keypair, "keypair", "keypair.json", "Keypair file (solana-keygen JSON format)")
	flags.StringVar(&a.programID, "program", "6NPhYomNhF7frhpkoNi6424tGrDYRgbANVUnWE6EFtwq", "Balance program id (base58)")
	flags.StringVar(&a.logLevel, "log-level", "error", "Log level: debug, info, warn, error")
	flags.DurationVar(&a.timeout, "timeout", 10*time.Second, "RPC timeout")

	rootCmd.AddCommand(
		newKeygenCmd(a),
		newAddressCmd(a),
		newCreateCmd(a),
		newCreditCmd(a),
		newDebitCmd(a),
		newShowCmd(a),
	)
	return rootCmd
}

// client 透過連線池取得節點的 Client
func (a *app) client() (*grpc_adapter.Client, error) {
	if a.pool == nil {
		a.pool = grpcpkg.NewPool(grpcpkg.WithInterceptor(grpcpkg.UnaryClientInterceptor(logger.New("balancectl", a.logLevel))))
	}
	conn, err := a.pool.GetConnection(a.node, a.dialOpts...)
	if err != nil {
		return nil, err
	}
	return grpc_adapter.NewClient(conn), nil
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout)
}

func (a *app) program() (solana.PublicKey, error) {
	id, err := solana.PublicKeyFromBase58(a.programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid program id: %w", err)
	}
	return id, nil
}

func (a *app) signer() (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(a.keypair)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", a.keypair, err)
	}
	return key, nil
}

// user 解析 --user 旗標，沒有設定時使用 keypair 的公鑰
func (a *app) user(cmd *cobra.Command) (solana.PublicKey, error) {
	if s, _ := cmd.Flags().GetString("user"); s != "" {
		key, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("invalid user address: %w", err)
		}
		return key, nil
	}
	key, err := a.signer()
	if err != nil {
		return solana.PublicKey{}, err
	}
	return key.PublicKey(), nil
}
