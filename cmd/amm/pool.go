package main

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/caesar-terminal/amm/internal/config"
	"github.com/caesar-terminal/amm/internal/rpc"
)

// poolCmd groups the queries a running daemon answers over its socket.
func poolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Query a running exchange",
	}
	cmd.PersistentFlags().String("socket", "", "daemon socket (default AMM_RPC_SOCKET_PATH)")
	cmd.AddCommand(poolInfoCmd(), poolQuoteCmd(), poolRefreshCmd())
	return cmd
}

func poolInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show pool identities, metadata and the last observed reserves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(c *rpc.Client) (any, error) {
				return c.PoolInfo(cmd.Context(), &rpc.PoolInfoRequest{})
			})
		},
	}
}

func poolQuoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quote [amount] [a->b|b->a]",
		Short: "Quote a swap against the last observed reserves",
		Long: `Quote prices amount (smallest units) of the input asset.

Example:
  $ amm pool quote 100000000 a->b`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := uint256.FromDecimal(args[0])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[0], err)
			}
			return withClient(cmd, func(c *rpc.Client) (any, error) {
				return c.Quote(cmd.Context(), &rpc.QuoteRequest{Amount: amount, Direction: args[1]})
			})
		},
	}
}

func poolRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-read both reserves from the ledgers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(c *rpc.Client) (any, error) {
				return c.Refresh(cmd.Context(), &rpc.RefreshRequest{})
			})
		},
	}
}

// withClient dials the daemon, runs call and prints its response as JSON.
func withClient(cmd *cobra.Command, call func(*rpc.Client) (any, error)) error {
	socket, err := cmd.Flags().GetString("socket")
	if err != nil {
		return err
	}
	if socket == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		socket = cfg.RPC.SocketPath
	}

	conn, client, err := rpc.Dial(socket)
	if err != nil {
		return err
	}
	defer conn.Close()

	resp, err := call(client)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
