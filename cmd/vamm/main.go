package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "vamm",
		Short:        "Dated interest-rate swap VAMM",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the order API",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("journal", "./data/journal.jsonl", "event journal JSONL path")
	serveCmd.Flags().String("state-dir", "./data/state", "pebble directory for pool snapshots")
	serveCmd.Flags().String("rpc", "", "JSON-RPC URL for the rate oracle (empty uses a static index)")
	serveCmd.Flags().String("lending-pool", "", "lending pool address serving liquidity indices")
	serveCmd.Flags().String("rate-assets", "", "market->reserve asset mappings (comma-separated market=0xasset)")
	serveCmd.Flags().String("static-index", "1", "rate index used without an RPC (decimal)")
	serveCmd.Flags().Int("max-retries", 5, "maximum retry attempts for rate calls")
	serveCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	serveCmd.Flags().StringSlice("cors-origins", []string{"*"}, "allowed CORS origins")
	serveCmd.Flags().StringSlice("allowed-callers", nil, "callers allowed to place orders")
	serveCmd.Flags().Bool("allow-all-callers", false, "authorize every caller")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	serveCmd.Flags().String("spread", "0", "default spread applied to adjusted TWAP (decimal)")
	serveCmd.Flags().String("price-impact-phi", "0", "default price impact phi (decimal)")
	serveCmd.Flags().String("price-impact-beta", "1", "default price impact beta (decimal)")
	serveCmd.Flags().Uint16("observation-cardinality", 16, "default oracle cardinality target")
	serveCmd.Flags().Duration("inactive-window", 24*time.Hour, "window before maturity in which orders are refused")
	serveCmd.Flags().Int("maker-positions-limit", 10, "maximum open maker positions per account and pool")
	serveCmd.Flags().Int32("min-tick", -69100, "default lowest tradable tick")
	serveCmd.Flags().Int32("max-tick", 69100, "default highest tradable tick")

	root.AddCommand(serveCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode the event journal into typed events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("in", "./data/journal.jsonl", "input journal JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("state-dir", "", "optional pebble directory for pool metadata")
	decodeCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate typed events into window metrics",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("in", "./data/typed_events.jsonl", "input typed events JSONL")
	aggregateCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
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
