package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"datedVamm/internal/aggregate"
	"datedVamm/internal/config"
	"datedVamm/internal/storage/postgres"
)

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAggregate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	// one checkpoint row per window size so 1m and 1h runs never share progress
	var checkpoints aggregate.StateStore = &aggregate.DBStateStore{
		Store: store,
		Name:  fmt.Sprintf("aggregator:%d", cfg.WindowSeconds),
	}
	if cfg.StateFile != "" {
		checkpoints = &aggregate.FileStateStore{Path: cfg.StateFile}
	}

	logger.Info("aggregate start",
		zap.String("input", cfg.Input),
		zap.Bool("pg_dsn_set", cfg.PGDSN != ""),
		zap.Uint64("window_seconds", cfg.WindowSeconds),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Uint64("recompute_from", cfg.RecomputeFromTs),
		zap.Bool("file_checkpoint", cfg.StateFile != ""),
	)

	agg := aggregate.NewAggregator(aggregate.Config{
		WindowSeconds: cfg.WindowSeconds,
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: cfg.RecomputeFromTs,
		StateStore:    checkpoints,
	}, store, logger)
	return agg.Run(ctx, cfg.Input)
}
