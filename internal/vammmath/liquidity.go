package vammmath

import (
	"github.com/holiman/uint256"

	"datedVamm/internal/model"
)

func sortRatios(a, b *uint256.Int) (*uint256.Int, *uint256.Int) {
	if a.Gt(b) {
		return b, a
	}
	return a, b
}

// BaseBetween returns L*(b-a)/2^96, the base held by liquidity between two
// sqrt ratios.
func BaseBetween(sqrtA, sqrtB, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	lo, hi := sortRatios(sqrtA, sqrtB)
	diff := new(uint256.Int).Sub(hi, lo)
	if roundUp {
		return MulDivRoundingUp(liquidity, diff, Q96)
	}
	return MulDiv(liquidity, diff, Q96)
}

// LiquidityForBase returns the liquidity that holds base between two sqrt
// ratios, rounding down.
func LiquidityForBase(sqrtA, sqrtB, base *uint256.Int) (*uint256.Int, error) {
	lo, hi := sortRatios(sqrtA, sqrtB)
	diff := new(uint256.Int).Sub(hi, lo)
	if diff.IsZero() {
		return nil, model.ErrInvalidTickRange.Wrap("empty sqrt range")
	}
	liquidity, err := MulDiv(base, Q96, diff)
	if err != nil {
		return nil, err
	}
	if err := CheckUint128(liquidity); err != nil {
		return nil, err
	}
	return liquidity, nil
}

// NextSqrtRatioFromBase moves the sqrt ratio by a base amount. Adding base to
// the pool raises the ratio (rounded down); removing it lowers the ratio
// (rounded up in the removed distance) so the pool never gives out more base
// than the liquidity holds.
func NextSqrtRatioFromBase(sqrtP, liquidity, base *uint256.Int, add bool) (*uint256.Int, error) {
	if liquidity.IsZero() {
		return nil, model.ErrInvalidArgument.Wrap("zero liquidity")
	}
	if add {
		delta, err := MulDiv(base, Q96, liquidity)
		if err != nil {
			return nil, err
		}
		next, overflow := new(uint256.Int).AddOverflow(sqrtP, delta)
		if overflow {
			return nil, model.ErrMathOverflow.Wrap("sqrt ratio add")
		}
		return next, nil
	}
	delta, err := MulDivRoundingUp(base, Q96, liquidity)
	if err != nil {
		return nil, err
	}
	if !sqrtP.Gt(delta) {
		return nil, model.ErrSqrtPriceOutOfBounds.Wrap("base exceeds liquidity at price")
	}
	return new(uint256.Int).Sub(sqrtP, delta), nil
}
