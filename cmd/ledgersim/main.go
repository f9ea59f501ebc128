// Command ledgersim serves an in-memory fungible-token ledger over websocket
// for local runs of the amm daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/viper"

	"github.com/caesar-terminal/amm/internal/ledger"
	"github.com/caesar-terminal/amm/internal/logging"
	"github.com/caesar-terminal/amm/internal/transport"
)

func main() {
	v := viper.New()
	v.SetEnvPrefix("LEDGERSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8546")
	v.SetDefault("path", "/ledger")
	v.SetDefault("log_level", "info")
	v.SetDefault("require_signatures", true)
	v.SetDefault("asset_a.address", "0x00000000000000000000000000000000000000aa")
	v.SetDefault("asset_a.symbol", "WBTC")
	v.SetDefault("asset_a.decimals", 8)
	v.SetDefault("asset_b.address", "0x00000000000000000000000000000000000000bb")
	v.SetDefault("asset_b.symbol", "USDT")
	v.SetDefault("asset_b.decimals", 6)
	// Comma-separated "<token>:<account>:<amount>" grants applied at start.
	v.SetDefault("mint", "")

	logger := logging.NewLogger("development", v.GetString("log_level"))

	mem := ledger.NewMemory(logger)
	mem.RequireSignatures(v.GetBool("require_signatures"))
	for _, side := range []string{"asset_a", "asset_b"} {
		addr := v.GetString(side + ".address")
		if !common.IsHexAddress(addr) {
			fmt.Fprintf(os.Stderr, "ledgersim: %s.address: invalid address %q\n", side, addr)
			os.Exit(1)
		}
		symbol := v.GetString(side + ".symbol")
		mem.AddToken(common.HexToAddress(addr), ledger.Metadata{
			Spec:     "ft-1.0.0",
			Name:     symbol,
			Symbol:   symbol,
			Decimals: uint8(v.GetUint(side + ".decimals")),
		})
	}
	if err := applyGrants(mem, v.GetString("mint")); err != nil {
		fmt.Fprintf(os.Stderr, "ledgersim: %v\n", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle(v.GetString("path"), transport.NewServer(mem, logger))
	srv := &http.Server{Addr: v.GetString("addr"), Handler: mux}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("ledgersim: listening", "addr", srv.Addr, "path", v.GetString("path"))

	select {
	case <-ctx.Done():
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ledgersim: serve", "err", err)
			os.Exit(1)
		}
	}
}

func applyGrants(mem *ledger.Memory, grants string) error {
	for _, grant := range strings.Split(grants, ",") {
		grant = strings.TrimSpace(grant)
		if grant == "" {
			continue
		}
		parts := strings.Split(grant, ":")
		if len(parts) != 3 || !common.IsHexAddress(parts[0]) || !common.IsHexAddress(parts[1]) {
			return fmt.Errorf("malformed grant %q", grant)
		}
		amount, err := uint256.FromDecimal(parts[2])
		if err != nil {
			return fmt.Errorf("grant %q: %w", grant, err)
		}
		if err := mem.Mint(common.HexToAddress(parts[0]), common.HexToAddress(parts[1]), amount); err != nil {
			return err
		}
	}
	return nil
}
