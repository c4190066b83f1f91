package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadLayersEnvFlagsAndFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "vamm.yaml")
	require.NoError(t, os.WriteFile(file, []byte("journal: /tmp/journal.jsonl\nmaker-positions-limit: 4\nrate-assets:\n  \"1\": \"0x2222222222222222222222222222222222222222\"\n"), 0o644))

	t.Setenv("VAMM_LISTEN", ":9999")
	t.Setenv("VAMM_ALLOWED_CALLERS", "desk, risk ,")

	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.String("spread", "", "")
	require.NoError(t, flags.Parse([]string{"--spread=0.002"}))

	cfg, err := Load(file, flags)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Listen)
	require.Equal(t, "/tmp/journal.jsonl", cfg.Journal)
	require.Equal(t, []string{"desk", "risk"}, cfg.AllowedCallers)
	require.Equal(t, []string{"*"}, cfg.CORSOrigins)
	require.Equal(t, "0x2222222222222222222222222222222222222222", cfg.RateAssets["1"])
	require.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)

	m, err := cfg.MutableDefaults()
	require.NoError(t, err)
	require.Equal(t, "0.002000000000000000", m.Spread.String())
	require.Equal(t, 4, m.MakerPositionsLimit)
	require.Equal(t, int64(24*60*60), m.InactiveWindowSeconds)
	require.Equal(t, int32(-69100), m.MinTick)
}

func TestMutableDefaultsRejectsBadDecimal(t *testing.T) {
	cfg := ServeConfig{Spread: "abc", PriceImpactPhi: "0", PriceImpactBeta: "1"}
	_, err := cfg.MutableDefaults()
	require.Error(t, err)
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("1700000000")
	require.NoError(t, err)
	require.Equal(t, uint64(1700000000), ts)

	ts, err = ParseTimestamp("2023-11-14T22:13:20Z")
	require.NoError(t, err)
	require.Equal(t, uint64(1700000000), ts)

	ts, err = ParseTimestamp(" ")
	require.NoError(t, err)
	require.Zero(t, ts)

	_, err = ParseTimestamp("yesterday")
	require.Error(t, err)
}

func TestParseStringMap(t *testing.T) {
	got := parseStringMap("TakerOrder=0xabc, bad, =x,Swap = 0xdef")
	require.Equal(t, map[string]string{"TakerOrder": "0xabc", "Swap": "0xdef"}, got)
}

func TestAggregateValidate(t *testing.T) {
	cfg := AggregateConfig{Input: "typed.jsonl", PGDSN: "postgres://x", Window: "5m", RecomputeFrom: "1700000000"}
	require.NoError(t, cfg.Validate())
	require.Equal(t, uint64(300), cfg.WindowSeconds)
	require.Equal(t, uint64(1700000000), cfg.RecomputeFromTs)

	for _, bad := range []AggregateConfig{
		{PGDSN: "postgres://x", Window: "5m"},
		{Input: "typed.jsonl", Window: "5m"},
		{Input: "typed.jsonl", PGDSN: "postgres://x", Window: "500ms"},
		{Input: "typed.jsonl", PGDSN: "postgres://x", Window: "soon"},
		{Input: "typed.jsonl", PGDSN: "postgres://x", Window: "1m", RecomputeFrom: "yesterday"},
	} {
		require.Error(t, bad.Validate(), "%+v", bad)
	}
}

func TestLoadDecodeRefusesToOverwriteJournal(t *testing.T) {
	flags := pflag.NewFlagSet("decode", pflag.ContinueOnError)
	flags.String("in", "", "")
	flags.String("out", "", "")
	require.NoError(t, flags.Parse([]string{"--in=j.jsonl", "--out=j.jsonl"}))
	_, err := LoadDecode("", flags)
	require.Error(t, err)
}
