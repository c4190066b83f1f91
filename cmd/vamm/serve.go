package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"datedVamm/internal/api"
	"datedVamm/internal/chain"
	"datedVamm/internal/config"
	"datedVamm/internal/events"
	"datedVamm/internal/market"
	"datedVamm/internal/storage"
	"datedVamm/internal/storage/kv"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	defaults, err := cfg.MutableDefaults()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rates, closeRates, err := newRateOracle(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRates()

	store, err := kv.Open(cfg.StateDir)
	if err != nil {
		return err
	}
	defer store.Close()

	journal := storage.NewJsonlStorage(cfg.Journal)
	lastSeq, err := journal.LastSequence()
	if err != nil {
		return err
	}
	encoder, err := events.NewEncoder(lastSeq)
	if err != nil {
		return err
	}

	var auth market.Authorizer
	switch {
	case cfg.AllowAllCallers:
		auth = market.AllowAll{}
	case len(cfg.AllowedCallers) > 0:
		allow := make(market.CallerAllowlist, len(cfg.AllowedCallers))
		for _, caller := range cfg.AllowedCallers {
			allow[caller] = true
		}
		auth = allow
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	manager, err := market.NewManager(market.Options{
		Rates:          rates,
		Authorizer:     auth,
		Journal:        journal,
		Encoder:        encoder,
		Persister:      store,
		Metrics:        market.NewMetrics(reg),
		Logger:         logger,
		DefaultMutable: &defaults,
	})
	if err != nil {
		return err
	}

	exports, err := store.LoadAll()
	if err != nil {
		return err
	}
	if err := manager.LoadPools(exports); err != nil {
		return err
	}

	logger.Info("serve start",
		zap.String("listen", cfg.Listen),
		zap.String("journal", cfg.Journal),
		zap.String("state_dir", cfg.StateDir),
		zap.Uint64("journal_sequence", lastSeq),
		zap.Int("pools", len(exports)),
		zap.Bool("chain_rates", cfg.RPCURL != ""),
		zap.Bool("allow_all_callers", cfg.AllowAllCallers),
		zap.Int("allowed_callers", len(cfg.AllowedCallers)),
	)

	server := api.NewServer(manager, api.Options{
		Logger:      logger,
		Gatherer:    reg,
		CORSOrigins: cfg.CORSOrigins,
	})
	return server.Start(ctx, cfg.Listen)
}

func newRateOracle(ctx context.Context, cfg config.ServeConfig, logger *zap.Logger) (market.RateOracle, func(), error) {
	if cfg.RPCURL == "" {
		index, err := sdkmath.LegacyNewDecFromStr(cfg.StaticIndex)
		if err != nil {
			return nil, nil, fmt.Errorf("parse static index: %w", err)
		}
		logger.Warn("no rpc configured, using static rate index", zap.String("index", index.String()))
		return market.NewStaticRateOracle(index.BigInt()), func() {}, nil
	}

	if !common.IsHexAddress(cfg.LendingPool) {
		return nil, nil, fmt.Errorf("invalid lending pool address: %q", cfg.LendingPool)
	}
	assets, err := chain.ParseAssets(cfg.RateAssets)
	if err != nil {
		return nil, nil, err
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect rpc: %w", err)
	}
	pool := common.HexToAddress(cfg.LendingPool)
	chainID, err := client.Connect(ctx, pool)
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	oracle, err := chain.NewRateOracle(chain.RateOracleConfig{
		LendingPool:  pool,
		Assets:       assets,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, client, logger)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	logger.Info("rate oracle connected",
		zap.String("chain_id", chainID.String()),
		zap.String("lending_pool", cfg.LendingPool),
		zap.Int("markets", len(assets)),
	)
	return oracle, client.Close, nil
}
