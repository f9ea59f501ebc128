package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc"

	"github.com/caesar-terminal/amm/internal/config"
	"github.com/caesar-terminal/amm/internal/events"
	"github.com/caesar-terminal/amm/internal/exchange"
	"github.com/caesar-terminal/amm/internal/fabric"
	"github.com/caesar-terminal/amm/internal/kms"
	"github.com/caesar-terminal/amm/internal/rpc"
	"github.com/caesar-terminal/amm/internal/signer"
	"github.com/caesar-terminal/amm/internal/transport"
)

const bootstrapTimeout = 30 * time.Second

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.Exchange.Validate(); err != nil {
		return err
	}
	fee, err := cfg.Exchange.Fee()
	if err != nil {
		return err
	}

	key, err := loadKey(ctx, cfg)
	if err != nil {
		return err
	}
	defer key.Destroy()

	logger.Info("amm: starting", "env", cfg.Env, "account", key.Address().Hex(), "ledger", cfg.Ledger.URL)

	wsCfg := transport.DefaultWSConfig(cfg.Ledger.URL)
	wsCfg.HeartbeatTimeout = cfg.Ledger.HeartbeatTimeout()
	client, err := transport.Dial(ctx, wsCfg, cfg.Ledger.CallTimeout(), logger)
	if err != nil {
		return err
	}
	defer client.Close()

	fab := fabric.New(client, logger, fabric.WithSigner(key))

	var store exchange.StateStore = exchange.NewMemoryStore()
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		store = exchange.NewRedisStore(rdb)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var wg conc.WaitGroup
	defer wg.Wait()
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	wg.Go(func() { fab.Run(ctx) })

	params := exchange.Params{
		Owner:           common.HexToAddress(cfg.Exchange.Owner),
		AssetA:          common.HexToAddress(cfg.Exchange.AssetA),
		AssetB:          common.HexToAddress(cfg.Exchange.AssetB),
		RegistrationFee: fee,
		StateKey:        cfg.Exchange.StateKey,
	}
	if cfg.Exchange.Self != "" {
		params.Self = common.HexToAddress(cfg.Exchange.Self)
	}
	ex, err := exchange.Construct(ctx, params, exchange.Deps{
		Fabric:  fab,
		Store:   store,
		Logger:  logger,
		Metrics: exchange.NewMetrics(reg),
	})
	if err != nil {
		return err
	}

	select {
	case <-ex.Bootstrapped():
	case <-time.After(bootstrapTimeout):
		return errors.New("amm: metadata bootstrap timed out")
	case <-ctx.Done():
		return nil
	}
	if err := ex.BootstrapErr(); err != nil {
		// Bootstrap is not retried. Swaps are rejected for the life of the
		// process; only owner seeding and reserve queries keep working.
		logger.Error("amm: pool unusable, metadata unavailable", "err", err)
	}
	select {
	case <-ex.Refresh(ctx).Done():
	case <-ctx.Done():
		return nil
	}

	bc := events.NewBroadcaster(logger)
	bc.Register(ex)
	if rdb != nil {
		writer := events.NewRedisWriter(events.GoRedis{Client: rdb}, bc.SubscribeAll(), logger)
		wg.Go(func() { writer.Run(ctx) })
	}
	aborted := bc.Subscribe(events.KindAborted)
	wg.Go(func() { bc.Run(ctx) })
	wg.Go(func() { logAborts(ctx, logger, aborted) })

	if err := client.Subscribe(ex.Self()); err != nil {
		return fmt.Errorf("subscribe deposits: %w", err)
	}
	wg.Go(func() { consumeDeposits(ctx, logger, client, ex) })

	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux(reg)}
	wg.Go(func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("amm: metrics server", "err", err)
		}
	})

	srv, err := rpc.New(cfg.RPC.SocketPath, ex, logger)
	if err != nil {
		metricsSrv.Close()
		return err
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	ticker, _ := ex.Ticker()
	logger.Info("amm: ready", "pool", ticker, "socket", cfg.RPC.SocketPath, "metrics", cfg.Metrics.Addr)

	select {
	case <-ctx.Done():
		logger.Info("amm: shutting down")
		srv.GracefulStop()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		metricsSrv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		metricsSrv.Close()
		return fmt.Errorf("rpc server: %w", err)
	}
}

func loadKey(ctx context.Context, cfg *config.Config) (*signer.Key, error) {
	switch {
	case cfg.Signer.KeyCiphertextFile != "":
		raw, err := os.ReadFile(cfg.Signer.KeyCiphertextFile)
		if err != nil {
			return nil, fmt.Errorf("read sealed key: %w", err)
		}
		ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("decode sealed key: %w", err)
		}
		kc, err := kms.New(ctx, cfg.Signer.AWSRegion, cfg.Signer.KMSKeyID, cfg.LocalStackEndpoint)
		if err != nil {
			return nil, err
		}
		return signer.FromCiphertext(ctx, kc, ciphertext)
	case cfg.Signer.KeyHex != "":
		return signer.FromHex(cfg.Signer.KeyHex)
	default:
		return nil, errors.New("no signing key: set AMM_SIGNER_KEY_HEX or AMM_SIGNER_KEY_CIPHERTEXT_FILE")
	}
}

func consumeDeposits(ctx context.Context, logger *slog.Logger, client *transport.Client, ex *exchange.Exchange) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-client.Notifications():
			if !ok {
				return
			}
			_, err := ex.OnDeposit(ctx, exchange.Deposit{
				Ledger: n.Ledger,
				Sender: n.Sender,
				Amount: n.Amount,
				Memo:   n.Msg,
			})
			if err != nil {
				logger.Warn("amm: deposit rejected", "ledger", n.Ledger.Hex(), "sender", n.Sender.Hex(), "err", err)
			}
		}
	}
}

func logAborts(ctx context.Context, logger *slog.Logger, feed <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-feed:
			logger.Warn("amm: settlement aborted", "counterparty", e.Counterparty.Hex(), "reason", e.Reason)
		}
	}
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}
