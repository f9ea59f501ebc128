package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/caesar-terminal/amm/internal/config"
	"github.com/caesar-terminal/amm/internal/logging"
)

func main() {
	defer memguard.Purge()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "amm: %v\n", err)
		memguard.Purge()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amm",
		Short: "Two-asset constant-product exchange",
		Long: `amm runs a constant-product pool over two ledger assets.

Configuration is read from AMM_* environment variables.
Without a subcommand amm runs the daemon.`,
		SilenceUsage: true,
		RunE:         runServe,
	}
	cmd.AddCommand(serveCmd(), sealCmd(), poolCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the exchange daemon",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err := run(cmd.Context(), cfg, logger); err != nil {
		logger.Error("amm: fatal", "err", err)
		return err
	}
	logger.Info("amm: stopped")
	return nil
}
