package vammmath

import (
	"math/big"

	"github.com/holiman/uint256"

	"datedVamm/internal/model"
)

// PriceAtSqrtRatio returns the quote-per-base price (WAD) for a sqrt ratio:
// WAD * 2^192 / sqrtPriceX96^2, i.e. 1.0001^-tick.
func PriceAtSqrtRatio(sqrtPriceX96 *uint256.Int) *big.Int {
	return AveragePrice(sqrtPriceX96, sqrtPriceX96)
}

// PriceAtTick returns the WAD price of a tick.
func PriceAtTick(tick int32) (*big.Int, error) {
	ratio, err := SqrtRatioAtTick(tick)
	if err != nil {
		return nil, err
	}
	return PriceAtSqrtRatio(ratio), nil
}

// SqrtRatioAtPrice inverts PriceAtSqrtRatio, rounding the sqrt ratio down.
func SqrtRatioAtPrice(priceWad *big.Int) (*uint256.Int, error) {
	if priceWad == nil || priceWad.Sign() <= 0 {
		return nil, model.ErrInvalidArgument.Wrap("price must be positive")
	}
	squared := new(big.Int).Mul(WAD, q192Big)
	squared.Quo(squared, priceWad)
	root, overflow := uint256.FromBig(squared.Sqrt(squared))
	if overflow {
		return nil, model.ErrSqrtPriceOutOfBounds.Wrapf("price %s", priceWad)
	}
	return root, nil
}

// TickAtPrice returns the tick t with PriceAtTick(t) >= price > PriceAtTick(t+1).
func TickAtPrice(priceWad *big.Int) (int32, error) {
	ratio, err := SqrtRatioAtPrice(priceWad)
	if err != nil {
		return 0, err
	}
	return TickAtSqrtRatio(ratio)
}

// AveragePrice is the price at the geometric mean of two sqrt ratios:
// WAD * 2^192 / (a*b). A base amount traded between a and b exchanges for
// base*AveragePrice/WAD quote.
func AveragePrice(sqrtA, sqrtB *uint256.Int) *big.Int {
	den := new(big.Int).Mul(sqrtA.ToBig(), sqrtB.ToBig())
	if den.Sign() == 0 {
		return new(big.Int)
	}
	num := new(big.Int).Mul(WAD, q192Big)
	return num.Quo(num, den)
}

// QuoteForBase returns the quote leg of a base amount traded at priceWad.
// Buying base (positive) costs quote, so the sign is inverted.
func QuoteForBase(base, priceWad *big.Int) *big.Int {
	out := MulDivSigned(base, priceWad, WAD)
	return out.Neg(out)
}
