package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ammctl",
		Short:        "Constant-product liquidity pool ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("state-file", "./data/ledger.json", "ledger snapshot path")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN, replaces the state file when set")
	root.PersistentFlags().String("journal", "./data/events.jsonl", "event journal JSONL path, empty disables")
	root.PersistentFlags().Int("max-retries", 5, "maximum retries on pool version conflicts")
	root.PersistentFlags().Duration("retry-backoff", 50*time.Millisecond, "initial retry backoff")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("metrics-file", "", "write Prometheus metrics in text format to this file after each command")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a pool for an ordered asset pair",
		RunE:  runInit,
	}
	initCmd.Flags().String("asset-a", "", "first asset id")
	initCmd.Flags().String("asset-b", "", "second asset id")
	initCmd.Flags().Uint16("fee-bps", 30, "LP fee in basis points")
	initCmd.Flags().Uint16("protocol-fee-bps", 5, "protocol fee in basis points")
	initCmd.Flags().String("admin", "", "admin identity")
	root.AddCommand(initCmd)

	creditCmd := &cobra.Command{
		Use:   "credit",
		Short: "Fund a custody account",
		RunE:  runCredit,
	}
	creditCmd.Flags().String("asset", "", "asset id")
	creditCmd.Flags().String("custody", "", "custody account")
	creditCmd.Flags().Uint64("amount", 0, "amount in base units")
	root.AddCommand(creditCmd)

	depositCmd := &cobra.Command{
		Use:   "deposit",
		Short: "Add liquidity and mint pool shares",
		RunE:  runDeposit,
	}
	addPoolFlags(depositCmd)
	depositCmd.Flags().Uint64("amount-a", 0, "desired amount of asset A")
	depositCmd.Flags().Uint64("amount-b", 0, "desired amount of asset B")
	depositCmd.Flags().Uint64("min-shares", 0, "minimum shares to mint")
	root.AddCommand(depositCmd)

	withdrawCmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Burn pool shares for the underlying reserves",
		RunE:  runWithdraw,
	}
	addPoolFlags(withdrawCmd)
	withdrawCmd.Flags().Uint64("shares", 0, "shares to burn")
	withdrawCmd.Flags().Uint64("min-a", 0, "minimum amount of asset A out")
	withdrawCmd.Flags().Uint64("min-b", 0, "minimum amount of asset B out")
	root.AddCommand(withdrawCmd)

	swapCmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap one pool asset for the other",
		RunE:  runSwap,
	}
	addPoolFlags(swapCmd)
	swapCmd.Flags().Uint64("amount-in", 0, "input amount")
	swapCmd.Flags().Uint64("min-out", 0, "minimum output amount")
	swapCmd.Flags().String("direction", "a_to_b", "swap direction (a_to_b, b_to_a)")
	root.AddCommand(swapCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a swap without executing it",
		RunE:  runQuote,
	}
	quoteCmd.Flags().String("pool", "", "pool id")
	quoteCmd.Flags().Uint64("amount-in", 0, "input amount")
	quoteCmd.Flags().String("direction", "a_to_b", "swap direction (a_to_b, b_to_a)")
	root.AddCommand(quoteCmd)

	collectCmd := &cobra.Command{
		Use:   "collect-fees",
		Short: "Withdraw accumulated protocol fees (admin only)",
		RunE:  runCollectFees,
	}
	addPoolFlags(collectCmd)
	collectCmd.Flags().Uint64("amount-a", 0, "amount of asset A fees")
	collectCmd.Flags().Uint64("amount-b", 0, "amount of asset B fees")
	root.AddCommand(collectCmd)

	pauseCmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause or resume deposits and swaps (admin only)",
		RunE:  runPause,
	}
	addPoolFlags(pauseCmd)
	pauseCmd.Flags().Bool("paused", true, "pause state to set")
	root.AddCommand(pauseCmd)

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show pools, share balances and custody balances",
		RunE:  runShow,
	}
	showCmd.Flags().String("pool", "", "pool id, empty lists all pools")
	showCmd.Flags().String("owner", "", "show this owner's share balance in the pool")
	showCmd.Flags().String("asset", "", "with --custody, show a custody balance")
	showCmd.Flags().String("custody", "", "with --asset, show a custody balance")
	root.AddCommand(showCmd)

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "List the committed events of a pool",
		RunE:  runEvents,
	}
	eventsCmd.Flags().String("pool", "", "pool id")
	root.AddCommand(eventsCmd)

	return root
}

func addPoolFlags(cmd *cobra.Command) {
	cmd.Flags().String("pool", "", "pool id")
	cmd.Flags().String("caller", "", "identity performing the operation")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
