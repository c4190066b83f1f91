package position

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"datedVamm/internal/model"
	"datedVamm/internal/tick"
	"datedVamm/internal/vammmath"
)

func testKey(account int64, lower, upper int32) Key {
	return Key{
		AccountID: big.NewInt(account),
		MarketID:  big.NewInt(1),
		Maturity:  1_700_000_000,
		TickLower: lower,
		TickUpper: upper,
	}
}

func wadMul(num, den int64) *big.Int {
	v := new(big.Int).Mul(vammmath.WAD, big.NewInt(num))
	return v.Quo(v, big.NewInt(den))
}

func TestIDIsDeterministic(t *testing.T) {
	a, err := ID(testKey(7, -14100, -13620))
	require.NoError(t, err)
	b, err := ID(testKey(7, -14100, -13620))
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := ID(testKey(7, -14100, -13680))
	require.NoError(t, err)
	require.NotEqual(t, a, c)
	d, err := ID(testKey(8, -14100, -13620))
	require.NoError(t, err)
	require.NotEqual(t, a, d)

	_, err = ID(Key{})
	require.True(t, errors.Is(err, model.ErrInvalidArgument), "got %v", err)
	_, err = ID(testKey(-1, -14100, -13620))
	require.True(t, errors.Is(err, model.ErrInvalidArgument), "got %v", err)

	tooWide := testKey(7, -14100, -13620)
	tooWide.AccountID = new(big.Int).Lsh(big.NewInt(1), 128)
	_, err = ID(tooWide)
	require.True(t, errors.Is(err, model.ErrInvalidArgument), "got %v", err)
}

func TestUpdateLiquidityRejectsUnderflow(t *testing.T) {
	s := NewStore()
	p, err := s.LoadOrCreate(testKey(1, -60, 60))
	require.NoError(t, err)
	require.NoError(t, p.UpdateLiquidity(big.NewInt(10)))
	err = p.UpdateLiquidity(big.NewInt(-11))
	require.True(t, errors.Is(err, model.ErrNegativeLiquidity))
	require.Equal(t, uint64(10), p.Liquidity.Uint64())
}

func TestStoreCommitsOnPut(t *testing.T) {
	s := NewStore()
	key := testKey(1, -60, 60)
	p, err := s.LoadOrCreate(key)
	require.NoError(t, err)
	require.NoError(t, p.UpdateLiquidity(big.NewInt(5)))

	_, ok := s.Get(p.ID)
	require.False(t, ok, "working copy must not be visible before Put")
	require.Equal(t, 1, s.OpenCount("1", p))

	s.Put(p)
	stored, ok := s.Get(p.ID)
	require.True(t, ok)
	require.Equal(t, uint64(5), stored.Liquidity.Uint64())
	require.Equal(t, 1, s.OpenCount("1", nil))

	closed := stored.Clone()
	require.NoError(t, closed.UpdateLiquidity(big.NewInt(-5)))
	require.Equal(t, 0, s.OpenCount("1", closed))
	s.Put(closed)
	require.Len(t, s.ByAccount("1"), 1, "closing keeps the position")
}

func TestUpdateTokenBalancesAccruesInterest(t *testing.T) {
	p := newPosition([32]byte{1}, testKey(1, -60, 60))
	p.Liquidity = vammmath.Q128.Clone()

	// One swap step credited base 100 / quote -400 at index 1.0, t=1000.
	step := tick.Growth{Base: big.NewInt(100), Quote: big.NewInt(-400), Interest: big.NewInt(100)}
	require.NoError(t, p.UpdateTokenBalances(step, RateObservation{Index: vammmath.WAD, Timestamp: 1000}))
	require.Equal(t, "100", p.Base.String())
	require.Equal(t, "-400", p.Quote.String())
	require.Equal(t, "0", p.AccruedInterest.String())

	// A year later at index 1.1: 100*0.1 variable less 400*1% fixed.
	later := RateObservation{Index: wadMul(11, 10), Timestamp: 1000 + SecondsPerYear}
	require.NoError(t, p.UpdateTokenBalances(step, later))
	require.Equal(t, "6", p.AccruedInterest.String())

	err := p.UpdateTokenBalances(step, RateObservation{Index: vammmath.WAD, Timestamp: 999})
	require.True(t, errors.Is(err, model.ErrTimestampRegression))
	require.True(t, model.IsInvariantViolation(err))
	require.Equal(t, "6", p.AccruedInterest.String())
}

func TestInterestIndependentOfMarkSchedule(t *testing.T) {
	step := tick.Growth{Base: big.NewInt(1000), Quote: big.NewInt(-4000), Interest: big.NewInt(1000)}
	atStep := RateObservation{Index: vammmath.WAD, Timestamp: 100}
	end := RateObservation{Index: wadMul(105, 100), Timestamp: 100 + SecondsPerYear/2}

	eager := newPosition([32]byte{1}, testKey(1, -60, 60))
	eager.Liquidity = vammmath.Q128.Clone()
	require.NoError(t, eager.UpdateTokenBalances(step, atStep))
	require.NoError(t, eager.UpdateTokenBalances(step, end))

	lazy := newPosition([32]byte{2}, testKey(2, -60, 60))
	lazy.Liquidity = vammmath.Q128.Clone()
	require.NoError(t, lazy.UpdateTokenBalances(step, end))

	require.Equal(t, "30", eager.AccruedInterest.String())
	require.Equal(t, eager.AccruedInterest.String(), lazy.AccruedInterest.String())
	require.Equal(t, eager.Base.String(), lazy.Base.String())
	require.Equal(t, eager.Quote.String(), lazy.Quote.String())
}

func TestZeroLiquidityKeepsBalances(t *testing.T) {
	p := newPosition([32]byte{3}, testKey(3, -60, 60))
	p.Liquidity = uint256.NewInt(0)
	p.Base = big.NewInt(50)
	p.LastIndex = vammmath.WAD
	p.LastMark = 10

	g := tick.Growth{Base: big.NewInt(1 << 40), Quote: big.NewInt(0), Interest: big.NewInt(0)}
	require.NoError(t, p.UpdateTokenBalances(g, RateObservation{Index: wadMul(2, 1), Timestamp: 20}))
	require.Equal(t, "50", p.Base.String())
	require.Equal(t, "50", p.AccruedInterest.String())
}
