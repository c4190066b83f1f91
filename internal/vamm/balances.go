package vamm

import (
	"math/big"

	"github.com/holiman/uint256"

	"datedVamm/internal/position"
	"datedVamm/internal/vammmath"
)

// FilledBalances are executed amounts owed to or by a maker.
type FilledBalances struct {
	Base            *big.Int
	Quote           *big.Int
	AccruedInterest *big.Int
}

// UnfilledBalances describe resting maker liquidity. BaseLong is what the
// maker buys if takers sell through the part of the range above the current
// tick; BaseShort is what it sells below. Quotes are magnitudes.
type UnfilledBalances struct {
	BaseLong      *big.Int
	BaseShort     *big.Int
	QuoteLong     *big.Int
	QuoteShort    *big.Int
	AvgPriceLong  *big.Int
	AvgPriceShort *big.Int
}

func newFilled() FilledBalances {
	return FilledBalances{Base: new(big.Int), Quote: new(big.Int), AccruedInterest: new(big.Int)}
}

func newUnfilled() UnfilledBalances {
	return UnfilledBalances{
		BaseLong: new(big.Int), BaseShort: new(big.Int),
		QuoteLong: new(big.Int), QuoteShort: new(big.Int),
		AvgPriceLong: new(big.Int), AvgPriceShort: new(big.Int),
	}
}

func uint256FromAbs(v *big.Int) (*uint256.Int, bool) {
	return uint256.FromBig(new(big.Int).Abs(v))
}

// AccountFilledBalances sums the account's positions marked to the current
// growth and rate without persisting the mark.
func (p *Pool) AccountFilledBalances(accountID *big.Int, rate position.RateObservation) (FilledBalances, error) {
	out := newFilled()
	for _, pos := range p.positions.ByAccount(accountID.String()) {
		inside := p.ticks.GrowthInside(pos.Key.TickLower, pos.Key.TickUpper, p.state.Tick, p.state.Growth)
		if err := pos.UpdateTokenBalances(inside, rate); err != nil {
			return FilledBalances{}, err
		}
		out.Base.Add(out.Base, pos.Base)
		out.Quote.Add(out.Quote, pos.Quote)
		out.AccruedInterest.Add(out.AccruedInterest, pos.AccruedInterest)
	}
	return out, nil
}

// AccountUnfilledBalances sums resting liquidity of the account's positions.
// Average prices are weighted by base across positions.
func (p *Pool) AccountUnfilledBalances(accountID *big.Int) (UnfilledBalances, error) {
	out := newUnfilled()
	for _, pos := range p.positions.ByAccount(accountID.String()) {
		if pos.Liquidity.IsZero() {
			continue
		}
		u, err := p.rangeUnfilled(pos.Key.TickLower, pos.Key.TickUpper, pos.Liquidity)
		if err != nil {
			return UnfilledBalances{}, err
		}
		out.BaseLong.Add(out.BaseLong, u.BaseLong)
		out.BaseShort.Add(out.BaseShort, u.BaseShort)
		out.QuoteLong.Add(out.QuoteLong, u.QuoteLong)
		out.QuoteShort.Add(out.QuoteShort, u.QuoteShort)
	}
	if out.BaseLong.Sign() > 0 {
		out.AvgPriceLong = vammmath.MulDivSigned(out.QuoteLong, vammmath.WAD, out.BaseLong)
	}
	if out.BaseShort.Sign() > 0 {
		out.AvgPriceShort = vammmath.MulDivSigned(out.QuoteShort, vammmath.WAD, out.BaseShort)
	}
	return out, nil
}

func (p *Pool) rangeUnfilled(lower, upper int32, liquidity *uint256.Int) (UnfilledBalances, error) {
	out := newUnfilled()
	sqrtLower, err := vammmath.SqrtRatioAtTick(lower)
	if err != nil {
		return out, err
	}
	sqrtUpper, err := vammmath.SqrtRatioAtTick(upper)
	if err != nil {
		return out, err
	}
	current := p.state.SqrtPriceX96
	switch {
	case current.Lt(sqrtLower):
		current = sqrtLower
	case current.Gt(sqrtUpper):
		current = sqrtUpper
	}

	total, err := vammmath.BaseBetween(sqrtLower, sqrtUpper, liquidity, false)
	if err != nil {
		return out, err
	}
	long, err := vammmath.BaseBetween(current, sqrtUpper, liquidity, false)
	if err != nil {
		return out, err
	}
	out.BaseLong = long.ToBig()
	out.BaseShort = new(big.Int).Sub(total.ToBig(), out.BaseLong)

	if out.BaseLong.Sign() > 0 {
		out.AvgPriceLong = vammmath.AveragePrice(current, sqrtUpper)
		out.QuoteLong = vammmath.MulDivSigned(out.BaseLong, out.AvgPriceLong, vammmath.WAD)
	}
	if out.BaseShort.Sign() > 0 {
		out.AvgPriceShort = vammmath.AveragePrice(sqrtLower, current)
		out.QuoteShort = vammmath.MulDivSigned(out.BaseShort, out.AvgPriceShort, vammmath.WAD)
	}
	return out, nil
}
