package vammmath

import (
	"github.com/holiman/uint256"
)

// ComputeSwapStep moves the price from sqrtCurrent toward sqrtTarget using at
// most remaining base. It returns the price reached and the base exchanged in
// the segment. A target above the current ratio means base flows into the
// pool; below means base flows out of it.
func ComputeSwapStep(sqrtCurrent, sqrtTarget, liquidity, remaining *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if liquidity.IsZero() || sqrtCurrent.Eq(sqrtTarget) {
		return new(uint256.Int).Set(sqrtTarget), new(uint256.Int), nil
	}

	up := sqrtTarget.Gt(sqrtCurrent)

	// Base needed to reach the target: rounded up when the taker pays it in,
	// down when the pool pays it out.
	toTarget, err := BaseBetween(sqrtCurrent, sqrtTarget, liquidity, up)
	if err != nil {
		return nil, nil, err
	}
	if !remaining.Lt(toTarget) {
		return new(uint256.Int).Set(sqrtTarget), toTarget, nil
	}

	next, err := NextSqrtRatioFromBase(sqrtCurrent, liquidity, remaining, up)
	if err != nil {
		return nil, nil, err
	}
	return next, new(uint256.Int).Set(remaining), nil
}
