package oracle

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"datedVamm/internal/model"
)

func TestWriteSameTimestampIsNoop(t *testing.T) {
	r := NewRing()
	r.Initialize(100)
	liq := uint256.NewInt(1000)

	if err := r.Write(100, 50, liq); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r.Index != 0 || r.Cardinality != 1 {
		t.Fatalf("same-timestamp write moved the ring: index=%d card=%d", r.Index, r.Cardinality)
	}
	if err := r.Write(110, 50, liq); err != nil {
		t.Fatalf("write: %v", err)
	}
	latest, _ := r.Latest()
	if latest.Timestamp != 110 || latest.TickCumulative != 500 {
		t.Fatalf("latest = %+v", latest)
	}
	if err := r.CheckWrite(105); !errors.Is(err, model.ErrTimestampRegression) {
		t.Fatalf("check: expected regression, got %v", err)
	}
	if err := r.CheckWrite(110); err != nil {
		t.Fatalf("check at latest: %v", err)
	}
	if err := r.Write(105, 50, liq); !errors.Is(err, model.ErrTimestampRegression) {
		t.Fatalf("expected regression, got %v", err)
	}
	if err := NewRing().CheckWrite(1); !errors.Is(err, model.ErrOracleNotInitialized) {
		t.Fatalf("expected uninitialized, got %v", err)
	}
}

func TestGrowIsLazyAndRingWraps(t *testing.T) {
	r := NewRing()
	r.Initialize(0)
	require.NoError(t, r.Grow(3))
	require.Equal(t, uint16(1), r.Cardinality)
	require.Equal(t, uint16(3), r.CardinalityNext)

	liq := uint256.NewInt(1)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, r.Write(i*10, int32(i), liq))
	}
	require.Equal(t, uint16(3), r.Cardinality)

	oldest, err := r.Oldest()
	require.NoError(t, err)
	require.Equal(t, int64(30), oldest.Timestamp)

	// Older than the oldest retained entry.
	_, err = r.ObserveSingle(50, 25, 5, liq)
	require.True(t, errors.Is(err, model.ErrInsufficientHistory))

	_, err = r.ObserveSingle(50, 20, 5, liq)
	require.NoError(t, err)
}

func TestObserveInterpolates(t *testing.T) {
	r := NewRing()
	r.Initialize(0)
	require.NoError(t, r.Grow(10))
	liq := uint256.NewInt(1)

	// Tick 100 for [0,10), tick 200 for [10,30).
	require.NoError(t, r.Write(10, 100, liq))
	require.NoError(t, r.Write(30, 200, liq))

	cumulatives, _, err := r.Observe(30, []int64{30, 20, 15, 0}, 300, liq)
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1000, 2000, 5000}, cumulatives)

	// Past the last write the current tick extends the series.
	o, err := r.ObserveSingle(40, 0, 300, liq)
	require.NoError(t, err)
	require.Equal(t, int64(8000), o.TickCumulative)
}

func TestArithmeticMeanTick(t *testing.T) {
	r := NewRing()
	r.Initialize(0)
	require.NoError(t, r.Grow(10))
	liq := uint256.NewInt(1)
	require.NoError(t, r.Write(10, -100, liq))
	require.NoError(t, r.Write(20, -301, liq))

	mean, err := r.ArithmeticMeanTick(20, 20, -301, liq)
	require.NoError(t, err)
	// (-1000 - 3010) / 20 = -200.5, floored.
	require.Equal(t, int32(-201), mean)

	_, err = r.ArithmeticMeanTick(20, 21, -301, liq)
	require.True(t, errors.Is(err, model.ErrInsufficientHistory))
}

func TestObserveUninitialized(t *testing.T) {
	r := NewRing()
	_, _, err := r.Observe(10, []int64{0}, 0, uint256.NewInt(1))
	require.True(t, errors.Is(err, model.ErrOracleNotInitialized))
}

func TestAdjustedPrice(t *testing.T) {
	price := sdkmath.LegacyMustNewDecFromStr("4")
	adj := Adjustment{
		PriceImpactPhi:  sdkmath.LegacyMustNewDecFromStr("0.01"),
		PriceImpactBeta: sdkmath.LegacyMustNewDecFromStr("0.5"),
		Spread:          sdkmath.LegacyMustNewDecFromStr("0.1"),
	}
	notional := sdkmath.LegacyNewDec(100)

	buy, err := AdjustedPrice(price, 1, notional, adj)
	require.NoError(t, err)
	// 4 * (1 + 0.01*10) + 0.1
	require.True(t, buy.Sub(sdkmath.LegacyMustNewDecFromStr("4.5")).Abs().LT(sdkmath.LegacyMustNewDecFromStr("0.000001")), buy.String())

	sell, err := AdjustedPrice(price, -1, notional, adj)
	require.NoError(t, err)
	// 4 * (1 - 0.01*10) - 0.1
	require.True(t, sell.Sub(sdkmath.LegacyMustNewDecFromStr("3.5")).Abs().LT(sdkmath.LegacyMustNewDecFromStr("0.000001")), sell.String())

	same, err := AdjustedPrice(price, 0, notional, adj)
	require.NoError(t, err)
	require.True(t, same.Equal(price))

	floored, err := AdjustedPrice(sdkmath.LegacyMustNewDecFromStr("0.05"), -1, notional, adj)
	require.NoError(t, err)
	require.True(t, floored.IsZero())
}

func TestAdjustedPriceWholeBetaIsExact(t *testing.T) {
	price := sdkmath.LegacyMustNewDecFromStr("4")
	notional := sdkmath.LegacyMustNewDecFromStr("1000000000000001")
	adj := Adjustment{
		PriceImpactPhi:  sdkmath.LegacyMustNewDecFromStr("0.000000000000000001"),
		PriceImpactBeta: sdkmath.LegacyNewDec(2),
		Spread:          sdkmath.LegacyZeroDec(),
	}

	// (1e15+1)^2 * 1e-18 = 1000000000000.002000000000000001, beyond float64
	impact := sdkmath.LegacyMustNewDecFromStr("1000000000000.002000000000000001")
	buy, err := AdjustedPrice(price, 1, notional, adj)
	require.NoError(t, err)
	require.True(t, buy.Equal(price.Mul(sdkmath.LegacyOneDec().Add(impact))), buy.String())

	linear := adj
	linear.PriceImpactBeta = sdkmath.LegacyOneDec()
	large := sdkmath.LegacyMustNewDecFromStr("123456789012345678.123456789")
	buy, err = AdjustedPrice(price, 1, large, linear)
	require.NoError(t, err)
	require.True(t, buy.Equal(price.Mul(sdkmath.LegacyOneDec().Add(large.Mul(linear.PriceImpactPhi)))), buy.String())

	huge := adj
	huge.PriceImpactBeta = sdkmath.LegacyNewDec(40)
	_, err = AdjustedPrice(price, 1, sdkmath.LegacyMustNewDecFromStr("1000000000000000000000000000000"), huge)
	require.True(t, errors.Is(err, model.ErrMathOverflow), "got %v", err)
}
