package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// AggregateConfig holds configuration for aggregation.
type AggregateConfig struct {
	Input         string
	Window        string
	PGDSN         string
	BatchSize     int
	StateFile     string
	RecomputeFrom string
	LogLevel      string

	// Filled in by Validate.
	WindowSeconds   uint64
	RecomputeFromTs uint64
}

// LoadAggregate merges .env, config file, environment variables, and flags
// into AggregateConfig.
func LoadAggregate(cfgFile string, flags *pflag.FlagSet) (AggregateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"in":         "./data/typed_events.jsonl",
		"batch-size": 1000,
		"log-level":  "info",
		"window":     "5m",
	})
	if err != nil {
		return AggregateConfig{}, err
	}

	cfg := &AggregateConfig{
		Input:         v.GetString("in"),
		Window:        v.GetString("window"),
		PGDSN:         v.GetString("pg-dsn"),
		BatchSize:     v.GetInt("batch-size"),
		StateFile:     v.GetString("state-file"),
		RecomputeFrom: v.GetString("recompute-from"),
		LogLevel:      v.GetString("log-level"),
	}

	if err := cfg.Validate(); err != nil {
		return AggregateConfig{}, err
	}
	return *cfg, nil
}

// Validate checks required settings and resolves the window and recompute
// start into seconds.
func (c *AggregateConfig) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("input path is required")
	}
	if c.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	window, err := time.ParseDuration(c.Window)
	if err != nil {
		return fmt.Errorf("invalid window: %w", err)
	}
	if window < time.Second {
		return fmt.Errorf("window must be at least 1s, got %s", c.Window)
	}
	c.WindowSeconds = uint64(window / time.Second)

	if c.RecomputeFromTs, err = ParseTimestamp(c.RecomputeFrom); err != nil {
		return fmt.Errorf("parse recompute-from: %w", err)
	}
	return nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return 0, err
		}
		return val, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
