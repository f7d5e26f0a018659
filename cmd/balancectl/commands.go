package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	grpc_adapter "github.com/JoeShih716/go-balance-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-balance-ledger/internal/app/core/domain"
	programdomain "github.com/JoeShih716/go-balance-ledger/internal/app/program/domain"
)

func newKeygenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new keypair file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(a.keypair); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", a.keypair)
			}

			key, err := solana.NewRandomPrivateKey()
			if err != nil {
				return err
			}
			if err := writeKeypair(a.keypair, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote keypair to %s\nPublic key: %s\n", a.keypair, key.PublicKey())
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing keypair file")
	return cmd
}

func newAddressCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Print the balance account address of a user (offline)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			programID, err := a.program()
			if err != nil {
				return err
			}
			user, err := a.user(cmd)
			if err != nil {
				return err
			}
			addr, bump, err := programdomain.FindBalanceAddress(programID, user)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User: %s\nBalance account: %s\nBump: %d\n", user, addr, bump)
			return nil
		},
	}
	cmd.Flags().String("user", "", "User address (default: keypair public key)")
	return cmd
}

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create the balance account of the keypair owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			programID, err := a.program()
			if err != nil {
				return err
			}
			key, err := a.signer()
			if err != nil {
				return err
			}
			ix, err := programdomain.NewProvisionInstruction(programID, key.PublicKey())
			if err != nil {
				return err
			}
			return a.submit(cmd, ix, key)
		},
	}
}

func newCreditCmd(a *app) *cobra.Command {
	return newAmountCmd(a, "credit", "Credit an amount to a balance account", programdomain.NewCreditInstruction)
}

func newDebitCmd(a *app) *cobra.Command {
	return newAmountCmd(a, "debit", "Debit an amount from a balance account", programdomain.NewDebitInstruction)
}

type amountInstruction func(programID, user solana.PublicKey, amount uint32) (solana.Instruction, error)

func newAmountCmd(a *app, use, short string, build amountInstruction) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <amount>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid amount %q: must be an integer between 0 and 4294967295", args[0])
			}
			programID, err := a.program()
			if err != nil {
				return err
			}
			user, err := a.user(cmd)
			if err != nil {
				return err
			}
			ix, err := build(programID, user, uint32(amount))
			if err != nil {
				return err
			}
			return a.submit(cmd, ix)
		},
	}
	cmd.Flags().String("user", "", "User address (default: keypair public key)")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the balance account of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.user(cmd)
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			info, err := client.GetBalanceAccount(ctx, user)
			if errors.Is(err, domain.ErrAccountNotFound) {
				return fmt.Errorf("balance account of %s does not exist, run create first", user)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Balance account: %s\n", info.Address)
			fmt.Fprintf(out, "Credited amount: %d\n", info.CreditedAmount)
			fmt.Fprintf(out, "Debited amount:  %d\n", info.DebitedAmount)
			fmt.Fprintf(out, "Balance:         %d\n", info.Balance)
			return nil
		},
	}
	cmd.Flags().String("user", "", "User address (default: keypair public key)")
	return cmd
}

// submit 組成交易、簽名後送出，並印出程式日誌
func (a *app) submit(cmd *cobra.Command, ix solana.Instruction, signers ...solana.PrivateKey) error {
	hostIx, err := domain.NewInstruction(ix)
	if err != nil {
		return err
	}
	tx := domain.NewTransaction(hostIx)
	if err := tx.Sign(signers...); err != nil {
		return err
	}

	client, err := a.client()
	if err != nil {
		return err
	}
	ctx, cancel := a.context(cmd)
	defer cancel()

	res, err := client.SubmitTransaction(ctx, tx)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), res)
	if !res.Success {
		return fmt.Errorf("transaction %s failed (code %d): %s", res.TransactionID, res.ErrorCode, res.Message)
	}
	return nil
}

func printResult(out io.Writer, res *grpc_adapter.SubmitResult) {
	fmt.Fprintf(out, "Transaction: %s\n", res.TransactionID)
	switch {
	case res.Duplicate:
		fmt.Fprintln(out, "Status: already processed")
	case res.Success:
		fmt.Fprintln(out, "Status: success")
	default:
		fmt.Fprintf(out, "Status: failed (code %d)\n", res.ErrorCode)
	}
	for _, line := range res.Logs {
		fmt.Fprintf(out, "  %s\n", line)
	}
}

// writeKeypair 以 solana-keygen 的 JSON 格式 (64 個數字的陣列) 寫入私鑰
func writeKeypair(path string, key solana.PrivateKey) error {
	nums := make([]int, len(key))
	for i, b := range key {
		nums[i] = int(b)
	}
	data, err := json.Marshal(nums)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
