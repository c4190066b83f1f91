package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"datedVamm/internal/config"
	"datedVamm/internal/events"
	"datedVamm/internal/storage"
	"datedVamm/internal/storage/kv"
)

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
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

	decoder, err := events.NewVammDecoder(events.DecoderConfig{Topic0Map: cfg.Topic0Map})
	if err != nil {
		return err
	}
	decodeCtx := events.DecodeContext{
		Context:       ctx,
		PoolMetaCache: events.NewPoolMetaCache(),
		Logger:        logger,
	}
	// snapshot metadata is optional: without it events carry only market and maturity
	if cfg.StateDir != "" {
		store, err := kv.Open(cfg.StateDir)
		if err != nil {
			return err
		}
		defer store.Close()
		decodeCtx.Meta = store
	}

	journal, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer journal.Close()

	out, err := storage.CreateJSONL(cfg.Out)
	if err != nil {
		return err
	}
	defer out.Close()
	errs, err := storage.CreateJSONL(cfg.Errors)
	if err != nil {
		return err
	}
	defer errs.Close()

	logger.Info("decode start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.String("state_dir", cfg.StateDir),
	)

	stats, err := events.DecodeJournal(ctx, journal, decoder, decodeCtx, out, errs)
	if err != nil {
		return err
	}

	logger.Info("decode complete",
		zap.Int("total", stats.Total),
		zap.Int("decoded", stats.Decoded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Int("gaps", stats.Gaps),
		zap.Uint64("last_sequence", stats.LastSequence),
	)
	if stats.Gaps > 0 {
		logger.Warn("journal has sequence gaps; window metrics may be incomplete", zap.Int("gaps", stats.Gaps))
	}
	return nil
}
