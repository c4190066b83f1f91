package vamm

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"datedVamm/internal/model"
	"datedVamm/internal/position"
	"datedVamm/internal/vammmath"
)

const (
	seedTick  int32 = -13860
	rangeLow  int32 = -14100
	rangeHigh int32 = -13620
	startTime int64 = 1_000
)

type fataler interface {
	Fatalf(format string, args ...any)
}

func testConfig() Config {
	return Config{
		Immutable: ImmutableConfig{
			MarketID:    big.NewInt(1),
			Maturity:    2_000_000_000,
			TickSpacing: 60,
		},
		Mutable: DefaultMutableConfig(),
	}
}

func newTestPool(t fataler) *Pool {
	p, err := NewPoolAtTick(testConfig(), seedTick, startTime, nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return p
}

func rateAt(ts int64) position.RateObservation {
	return position.RateObservation{Index: new(big.Int).Set(vammmath.WAD), Timestamp: ts}
}

func makerKey(account int64, lower, upper int32) position.Key {
	return position.Key{
		AccountID: big.NewInt(account),
		MarketID:  big.NewInt(1),
		Maturity:  2_000_000_000,
		TickLower: lower,
		TickUpper: upper,
	}
}

func liquidityForBase(t fataler, lower, upper int32, base int64) *big.Int {
	l, err := vammmath.LiquidityForBase(vammmath.MustSqrtRatioAtTick(lower), vammmath.MustSqrtRatioAtTick(upper), uint256.NewInt(uint64(base)))
	if err != nil {
		t.Fatalf("liquidity for base: %v", err)
	}
	return l.ToBig()
}

func mint(t fataler, p *Pool, account int64, lower, upper int32, base int64, now int64) ModifyLiquidityResult {
	res, err := p.ModifyLiquidity(ModifyLiquidityParams{
		Key:            makerKey(account, lower, upper),
		LiquidityDelta: liquidityForBase(t, lower, upper, base),
		Rate:           rateAt(now),
		Now:            now,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return res
}

func TestMintUnfilledBalancesSumToBase(t *testing.T) {
	p := newTestPool(t)
	mint(t, p, 1, rangeLow, rangeHigh, 10_000, startTime)

	u, err := p.AccountUnfilledBalances(big.NewInt(1))
	require.NoError(t, err)
	sum := new(big.Int).Add(u.BaseLong, u.BaseShort)
	diff := new(big.Int).Sub(sum, big.NewInt(10_000))
	require.True(t, diff.CmpAbs(big.NewInt(1)) <= 0, "long %s + short %s", u.BaseLong, u.BaseShort)
	require.Positive(t, u.BaseLong.Sign())
	require.Positive(t, u.BaseShort.Sign())
	require.Positive(t, u.QuoteLong.Sign())
	require.Positive(t, u.QuoteShort.Sign())
	// The maker buys base below the current price and sells it above.
	require.True(t, u.AvgPriceLong.Cmp(u.AvgPriceShort) < 0)

	require.Equal(t, []int32{rangeLow, rangeHigh}, p.InitializedTicks())
	require.NoError(t, p.CheckInvariants())
	require.False(t, p.State().Liquidity.IsZero())
}

func TestSwapSellBaseNoLimit(t *testing.T) {
	p := newTestPool(t)
	mint(t, p, 1, rangeLow, rangeHigh, 10_000, startTime)

	res, err := p.Swap(SwapParams{BaseAmount: big.NewInt(-500), PriceLimit: big.NewInt(0), Rate: rateAt(startTime + 100), Now: startTime + 100})
	require.NoError(t, err)
	require.Equal(t, "-500", res.Base.String())
	require.Positive(t, res.Quote.Sign())
	require.Greater(t, res.Tick, seedTick)
	require.Equal(t, res.Tick, p.State().Tick)
	require.Zero(t, res.Remaining.Sign())

	// roughly 4% per unit of base
	require.True(t, res.Quote.Cmp(big.NewInt(1_990)) > 0 && res.Quote.Cmp(big.NewInt(2_010)) < 0, res.Quote.String())
}

func TestSwapQuoteConservation(t *testing.T) {
	p := newTestPool(t)
	mint(t, p, 1, rangeLow, rangeHigh, 10_000, startTime)
	mint(t, p, 2, -13740, -13500, 4_000, startTime)

	res, err := p.Swap(SwapParams{BaseAmount: big.NewInt(-7_000), Rate: rateAt(startTime + 10), Now: startTime + 10})
	require.NoError(t, err)
	require.Greater(t, len(res.Steps), 1)

	crossed := 0
	sumBase, sumQuote := new(big.Int), new(big.Int)
	for _, s := range res.Steps {
		price := vammmath.AveragePrice(s.SqrtStart, s.SqrtEnd)
		sumBase.Add(sumBase, s.Base)
		sumQuote.Add(sumQuote, vammmath.QuoteForBase(s.Base, price))
		if s.Crossed {
			crossed++
		}
	}
	require.Equal(t, res.Base.String(), sumBase.String())
	require.Equal(t, res.Quote.String(), sumQuote.String())
	require.Positive(t, crossed)
	require.NoError(t, p.CheckInvariants())
}

func TestSwapInsufficientLiquidityIsAtomic(t *testing.T) {
	p := newTestPool(t)
	mint(t, p, 1, rangeLow, rangeHigh, 10_000, startTime)
	before := p.Export()

	_, err := p.Swap(SwapParams{BaseAmount: big.NewInt(-50_000), Rate: rateAt(startTime + 10), Now: startTime + 10})
	require.True(t, errors.Is(err, model.ErrInsufficientLiquidity), "got %v", err)
	require.Equal(t, before, p.Export())
	require.False(t, p.Locked())
}

func TestSwapStopsAtExplicitLimit(t *testing.T) {
	p := newTestPool(t)
	mint(t, p, 1, rangeLow, rangeHigh, 10_000, startTime)

	limit, err := vammmath.PriceAtTick(-13700)
	require.NoError(t, err)
	res, err := p.Swap(SwapParams{BaseAmount: big.NewInt(-50_000), PriceLimit: limit, Rate: rateAt(startTime + 10), Now: startTime + 10})
	require.NoError(t, err)
	require.Negative(t, res.Remaining.Sign())
	require.True(t, res.Base.Cmp(big.NewInt(-50_000)) > 0)
	require.Zero(t, new(big.Int).Add(res.Base, res.Remaining).Cmp(big.NewInt(-50_000)))
	require.GreaterOrEqual(t, res.Tick, int32(-13701))
	require.LessOrEqual(t, res.Tick, int32(-13700))
}

func TestSwapBuyStopsAtExplicitLimit(t *testing.T) {
	p := newTestPool(t)
	mint(t, p, 1, rangeLow, rangeHigh, 10_000, startTime)

	limit, err := vammmath.PriceAtTick(-14000)
	require.NoError(t, err)
	res, err := p.Swap(SwapParams{BaseAmount: big.NewInt(50_000), PriceLimit: limit, Rate: rateAt(startTime + 10), Now: startTime + 10})
	require.NoError(t, err)
	require.Positive(t, res.Base.Sign())
	require.Positive(t, res.Remaining.Sign())
	require.Zero(t, new(big.Int).Add(res.Base, res.Remaining).Cmp(big.NewInt(50_000)))
	require.GreaterOrEqual(t, res.Tick, int32(-14001))
	require.LessOrEqual(t, res.Tick, int32(-14000))
}

func TestSwapMarkBand(t *testing.T) {
	p := newTestPool(t)
	mint(t, p, 1, rangeLow, rangeHigh, 10_000, startTime)
	mark, err := vammmath.PriceAtTick(seedTick)
	require.NoError(t, err)

	// Selling may not push the price more than 1% of a point below mark.
	band := new(big.Int).Div(vammmath.WAD, big.NewInt(100))
	res, err := p.Swap(SwapParams{
		BaseAmount: big.NewInt(-4_000), MarkPrice: mark, MarkPriceBand: band,
		Rate: rateAt(startTime + 10), Now: startTime + 10,
	})
	require.NoError(t, err)
	require.Negative(t, res.Remaining.Sign())
	require.Zero(t, new(big.Int).Add(res.Base, res.Remaining).Cmp(big.NewInt(-4_000)))
	floor := new(big.Int).Sub(mark, band)
	require.True(t, vammmath.PriceAtSqrtRatio(res.SqrtPriceX96).Cmp(floor) >= 0)

	// A buy whose band sits below the current price cannot move at all.
	low := new(big.Int).Sub(mark, new(big.Int).Mul(band, big.NewInt(10)))
	_, err = p.Swap(SwapParams{
		BaseAmount: big.NewInt(100), MarkPrice: low, MarkPriceBand: band,
		Rate: rateAt(startTime + 20), Now: startTime + 20,
	})
	require.True(t, errors.Is(err, model.ErrPriceBand), "got %v", err)
	require.True(t, model.IsPolicyRejection(err))
}

func TestSwapHookFailureRollsBack(t *testing.T) {
	p := newTestPool(t)
	mint(t, p, 1, rangeLow, rangeHigh, 10_000, startTime)
	before := p.Export()

	boom := errors.New("margin engine rejected")
	_, err := p.Swap(SwapParams{
		BaseAmount: big.NewInt(-5_000), Rate: rateAt(startTime + 10), Now: startTime + 10,
		BeforeCommit: func(SwapResult) error { return boom },
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, before, p.Export())
}

func TestStaleTimestampNeverReachesHooks(t *testing.T) {
	p := newTestPool(t)
	mint(t, p, 1, rangeLow, rangeHigh, 10_000, startTime+500)
	before := p.Export()

	called := false
	_, err := p.Swap(SwapParams{
		BaseAmount: big.NewInt(-100), Rate: rateAt(startTime + 100), Now: startTime + 100,
		BeforeCommit: func(SwapResult) error { called = true; return nil },
	})
	require.True(t, errors.Is(err, model.ErrTimestampRegression), "got %v", err)
	require.False(t, called, "swap hook ran for an order that cannot commit")

	_, err = p.ModifyLiquidity(ModifyLiquidityParams{
		Key:            makerKey(2, -13920, -13800),
		LiquidityDelta: liquidityForBase(t, -13920, -13800, 1_000),
		Rate:           rateAt(startTime + 100),
		Now:            startTime + 100,
		BeforeCommit:   func(ModifyLiquidityResult) error { called = true; return nil },
	})
	require.True(t, errors.Is(err, model.ErrTimestampRegression), "got %v", err)
	require.False(t, called, "liquidity hook ran for an order that cannot commit")
	require.True(t, model.IsInvariantViolation(err))
	require.Equal(t, before, p.Export())
	require.False(t, p.Locked())
}

func TestSwapReentrancyIsRejected(t *testing.T) {
	p := newTestPool(t)
	mint(t, p, 1, rangeLow, rangeHigh, 10_000, startTime)
	before := p.Export()

	var inner error
	_, err := p.Swap(SwapParams{
		BaseAmount: big.NewInt(-100), Rate: rateAt(startTime + 10), Now: startTime + 10,
		BeforeCommit: func(SwapResult) error {
			_, inner = p.Swap(SwapParams{BaseAmount: big.NewInt(-1), Rate: rateAt(startTime + 10), Now: startTime + 10})
			return inner
		},
	})
	require.True(t, errors.Is(inner, model.ErrLocked))
	require.True(t, errors.Is(err, model.ErrLocked))
	require.False(t, p.Locked(), "lock must be released on the error path")
	require.Equal(t, before, p.Export())

	_, err = p.Swap(SwapParams{BaseAmount: big.NewInt(-100), Rate: rateAt(startTime + 20), Now: startTime + 20})
	require.NoError(t, err)
}

func TestMakerBalancesAfterSwap(t *testing.T) {
	p := newTestPool(t)
	mint(t, p, 1, rangeLow, rangeHigh, 10_000, startTime)
	swapAt := startTime + 100

	res, err := p.Swap(SwapParams{BaseAmount: big.NewInt(-500), Rate: rateAt(swapAt), Now: swapAt})
	require.NoError(t, err)

	filled, err := p.AccountFilledBalances(big.NewInt(1), rateAt(swapAt))
	require.NoError(t, err)
	// The maker takes the other side, less truncation.
	require.True(t, filled.Base.Cmp(big.NewInt(499)) >= 0 && filled.Base.Cmp(big.NewInt(500)) <= 0, filled.Base.String())
	gap := new(big.Int).Add(filled.Quote, res.Quote)
	require.True(t, gap.CmpAbs(big.NewInt(2)) <= 0, "quote %s vs taker %s", filled.Quote, res.Quote)
	require.Zero(t, filled.AccruedInterest.Sign())

	// A year on, index up 10%: ~ 500*0.1 - 2000*1%.
	later := position.RateObservation{
		Index:     new(big.Int).Div(new(big.Int).Mul(vammmath.WAD, big.NewInt(11)), big.NewInt(10)),
		Timestamp: swapAt + position.SecondsPerYear,
	}
	filled, err = p.AccountFilledBalances(big.NewInt(1), later)
	require.NoError(t, err)
	require.True(t, filled.AccruedInterest.Cmp(big.NewInt(28)) >= 0 && filled.AccruedInterest.Cmp(big.NewInt(32)) <= 0, filled.AccruedInterest.String())

	// Querying does not persist the mark.
	pos, ok, err := p.Position(makerKey(1, rangeLow, rangeHigh))
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, pos.Base.Sign())
}

func TestBurnReturnsTicksAndKeepsBalances(t *testing.T) {
	p := newTestPool(t)
	res := mint(t, p, 1, rangeLow, rangeHigh, 10_000, startTime)
	_, err := p.Swap(SwapParams{BaseAmount: big.NewInt(-500), Rate: rateAt(startTime + 10), Now: startTime + 10})
	require.NoError(t, err)

	burn := new(big.Int).Neg(res.Position.Liquidity.ToBig())
	out, err := p.ModifyLiquidity(ModifyLiquidityParams{
		Key: makerKey(1, rangeLow, rangeHigh), LiquidityDelta: burn, Rate: rateAt(startTime + 20), Now: startTime + 20,
	})
	require.NoError(t, err)
	require.Negative(t, out.Base.Sign())
	require.True(t, out.Position.Liquidity.IsZero())
	require.Positive(t, out.Position.Base.Sign(), "accrued balances survive closing")
	require.Empty(t, p.InitializedTicks())
	require.True(t, p.State().Liquidity.IsZero())
	require.NoError(t, p.CheckInvariants())

	_, err = p.ModifyLiquidity(ModifyLiquidityParams{
		Key: makerKey(1, rangeLow, rangeHigh), LiquidityDelta: big.NewInt(-1), Rate: rateAt(startTime + 30), Now: startTime + 30,
	})
	require.True(t, errors.Is(err, model.ErrNegativeLiquidity), "got %v", err)
	require.Empty(t, p.InitializedTicks())
}

func TestModifyLiquidityRejectsBadRanges(t *testing.T) {
	p := newTestPool(t)
	cases := []struct {
		lower, upper int32
		want         error
	}{
		{-13620, -14100, model.ErrInvalidTickRange},
		{-14100, -13610, model.ErrInvalidTickRange},
		{-69120, -13620, model.ErrTickOutOfBounds},
	}
	for _, tc := range cases {
		_, err := p.ModifyLiquidity(ModifyLiquidityParams{
			Key: makerKey(1, tc.lower, tc.upper), LiquidityDelta: big.NewInt(1000), Rate: rateAt(startTime), Now: startTime,
		})
		require.True(t, errors.Is(err, tc.want), "[%d,%d]: got %v", tc.lower, tc.upper, err)
	}
}

func TestModifyLiquidityHookFailureRollsBack(t *testing.T) {
	p := newTestPool(t)
	mint(t, p, 1, rangeLow, rangeHigh, 10_000, startTime)
	before := p.Export()

	_, err := p.ModifyLiquidity(ModifyLiquidityParams{
		Key:            makerKey(2, -13920, -13800),
		LiquidityDelta: liquidityForBase(t, -13920, -13800, 1_000),
		Rate:           rateAt(startTime + 5),
		Now:            startTime + 5,
		BeforeCommit:   func(ModifyLiquidityResult) error { return model.ErrPositionLimit },
	})
	require.True(t, errors.Is(err, model.ErrPositionLimit))
	require.Equal(t, before, p.Export())
}

func TestTwapWindowOlderThanHistory(t *testing.T) {
	p := newTestPool(t)
	_, err := p.ArithmeticMeanTick(startTime+100, 200)
	require.True(t, errors.Is(err, model.ErrInsufficientHistory), "got %v", err)

	mean, err := p.ArithmeticMeanTick(startTime+100, 100)
	require.NoError(t, err)
	require.Equal(t, seedTick, mean)
}

func TestExportImportRoundTrip(t *testing.T) {
	p := newTestPool(t)
	mint(t, p, 1, rangeLow, rangeHigh, 10_000, startTime)
	_, err := p.Swap(SwapParams{BaseAmount: big.NewInt(-700), Rate: rateAt(startTime + 10), Now: startTime + 10})
	require.NoError(t, err)

	restored, err := Import(p.Export(), nil)
	require.NoError(t, err)
	require.Equal(t, p.Export(), restored.Export())
}

// Random maker and taker activity keeps the registry consistent and active
// liquidity equal to the in-range positions.
func TestPoolInvariantsUnderRandomActivity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := newTestPool(t)
		now := startTime
		type open struct {
			account      int64
			lower, upper int32
		}
		var opened []open

		ops := rapid.IntRange(1, 25).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			now += rapid.Int64Range(0, 600).Draw(t, "dt")
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				lower := rapid.Int32Range(-240, -225).Draw(t, "lower") * 60
				upper := lower + rapid.Int32Range(1, 8).Draw(t, "width")*60
				account := rapid.Int64Range(1, 3).Draw(t, "account")
				base := rapid.Int64Range(100, 50_000).Draw(t, "base")
				mint(t, p, account, lower, upper, base, now)
				opened = append(opened, open{account, lower, upper})
			case 1:
				if len(opened) == 0 {
					continue
				}
				o := opened[rapid.IntRange(0, len(opened)-1).Draw(t, "which")]
				pos, ok, err := p.Position(makerKey(o.account, o.lower, o.upper))
				if err != nil || !ok {
					t.Fatalf("position lookup: %v %t", err, ok)
				}
				if pos.Liquidity.IsZero() {
					continue
				}
				frac := rapid.Int64Range(1, 100).Draw(t, "frac")
				delta := new(big.Int).Mul(pos.Liquidity.ToBig(), big.NewInt(frac))
				delta.Quo(delta, big.NewInt(100))
				if delta.Sign() == 0 {
					continue
				}
				if _, err := p.ModifyLiquidity(ModifyLiquidityParams{
					Key: makerKey(o.account, o.lower, o.upper), LiquidityDelta: delta.Neg(delta), Rate: rateAt(now), Now: now,
				}); err != nil {
					t.Fatalf("burn: %v", err)
				}
			case 2:
				amount := rapid.Int64Range(-20_000, 20_000).Draw(t, "amount")
				if amount == 0 {
					continue
				}
				before := p.Export()
				if _, err := p.Swap(SwapParams{BaseAmount: big.NewInt(amount), Rate: rateAt(now), Now: now}); err != nil {
					if !errors.Is(err, model.ErrInsufficientLiquidity) {
						t.Fatalf("swap %d: %v", amount, err)
					}
					if after := p.Export(); after.State.Tick != before.State.Tick || !after.State.SqrtPriceX96.Eq(before.State.SqrtPriceX96) {
						t.Fatalf("failed swap moved the price")
					}
				}
			}

			if err := p.CheckInvariants(); err != nil {
				t.Fatalf("op %d: %v", i, err)
			}
			state := p.State()
			expected := new(big.Int)
			for _, pos := range p.Export().Positions {
				if pos.Key.TickLower <= state.Tick && state.Tick < pos.Key.TickUpper {
					expected.Add(expected, pos.Liquidity.ToBig())
				}
			}
			if expected.Cmp(state.Liquidity.ToBig()) != 0 {
				t.Fatalf("op %d: active liquidity %s, positions in range %s", i, state.Liquidity.ToBig(), expected)
			}
		}
	})
}
