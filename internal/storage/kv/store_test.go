package kv

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"datedVamm/internal/position"
	"datedVamm/internal/vamm"
	"datedVamm/internal/vammmath"
)

func testPool(t *testing.T, market int64) *vamm.Pool {
	t.Helper()
	cfg := vamm.Config{
		Immutable: vamm.ImmutableConfig{MarketID: big.NewInt(market), Maturity: 2_000_000_000, TickSpacing: 60},
		Mutable:   vamm.DefaultMutableConfig(),
	}
	p, err := vamm.NewPoolAtTick(cfg, -13860, 1_000, nil)
	require.NoError(t, err)

	liq, err := vammmath.LiquidityForBase(vammmath.MustSqrtRatioAtTick(-14100), vammmath.MustSqrtRatioAtTick(-13620), uint256.NewInt(10_000))
	require.NoError(t, err)
	rate := position.RateObservation{Index: new(big.Int).Set(vammmath.WAD), Timestamp: 1_000}
	_, err = p.ModifyLiquidity(vamm.ModifyLiquidityParams{
		Key: position.Key{
			AccountID: big.NewInt(1),
			MarketID:  big.NewInt(market),
			Maturity:  2_000_000_000,
			TickLower: -14100,
			TickUpper: -13620,
		},
		LiquidityDelta: liq.ToBig(),
		Rate:           rate,
		Now:            1_000,
	})
	require.NoError(t, err)

	rate.Timestamp = 1_100
	_, err = p.Swap(vamm.SwapParams{BaseAmount: big.NewInt(-500), Rate: rate, Now: 1_100})
	require.NoError(t, err)
	return p
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestSaveLoadPoolRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	p := testPool(t, 1)
	export := p.Export()
	require.NoError(t, store.SavePool(export))

	loaded, ok, err := store.LoadPool(big.NewInt(1), 2_000_000_000)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, mustJSON(t, export), mustJSON(t, loaded))

	restored, err := vamm.Import(loaded, nil)
	require.NoError(t, err)
	require.Equal(t, p.State().Tick, restored.State().Tick)
	require.Equal(t, p.InitializedTicks(), restored.InitializedTicks())

	_, ok, err = store.LoadPool(big.NewInt(1), 1_999_999_999)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSavePoolReplacesClearedTicks(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	p := testPool(t, 1)
	require.NoError(t, store.SavePool(p.Export()))

	export := p.Export()
	export.Ticks = export.Ticks[:0]
	require.NoError(t, store.SavePool(export))

	loaded, ok, err := store.LoadPool(big.NewInt(1), 2_000_000_000)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, loaded.Ticks)
	require.Len(t, loaded.Positions, 1)
}

func TestLoadAllAndPoolMeta(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SavePool(testPool(t, 1).Export()))
	require.NoError(t, store.SavePool(testPool(t, 12).Export()))

	all, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 2)

	meta, ok, err := store.PoolMeta(context.Background(), big.NewInt(12), 2_000_000_000)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int32(60), meta.TickSpacing)
	require.Equal(t, "12", meta.MarketID)
}

func TestTickKeyOrdering(t *testing.T) {
	prefix := instancePrefix(big.NewInt(1), 5)
	ticks := []int32{-887272, -60, 0, 60, 887272}
	for i := 1; i < len(ticks); i++ {
		require.Less(t, string(tickKey(prefix, ticks[i-1])), string(tickKey(prefix, ticks[i])))
	}
	for _, tk := range ticks {
		got, err := tickFromKey(tickKey(prefix, tk))
		require.NoError(t, err)
		require.Equal(t, tk, got)
	}
}
