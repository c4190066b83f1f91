package oracle

import (
	"math"
	"strconv"

	sdkmath "cosmossdk.io/math"
	"github.com/holiman/uint256"

	"datedVamm/internal/model"
)

// ArithmeticMeanTick returns the time-weighted mean tick over the last window
// seconds, rounded toward negative infinity.
func (r *Ring) ArithmeticMeanTick(now, window int64, tick int32, liquidity *uint256.Int) (int32, error) {
	if window <= 0 {
		return 0, model.ErrInvalidArgument.Wrapf("window %d", window)
	}
	cumulatives, _, err := r.Observe(now, []int64{window, 0}, tick, liquidity)
	if err != nil {
		return 0, err
	}
	delta := cumulatives[1] - cumulatives[0]
	mean := delta / window
	if delta < 0 && delta%window != 0 {
		mean--
	}
	return int32(mean), nil
}

// Adjustment carries the directional price impact and spread applied on top
// of a reference price.
type Adjustment struct {
	// PriceImpactPhi scales the impact term phi * notional^beta.
	PriceImpactPhi  sdkmath.LegacyDec
	PriceImpactBeta sdkmath.LegacyDec
	Spread          sdkmath.LegacyDec
}

// AdjustedPrice applies impact and spread for an order of the given
// annualized notional. Buys (positive size) move the price up and sells move
// it down, floored at zero. A zero size returns the price unchanged.
func AdjustedPrice(price sdkmath.LegacyDec, size int, annualizedNotional sdkmath.LegacyDec, adj Adjustment) (sdkmath.LegacyDec, error) {
	if size == 0 {
		return price, nil
	}

	impact := sdkmath.LegacyZeroDec()
	if !adj.PriceImpactPhi.IsNil() && adj.PriceImpactPhi.IsPositive() && annualizedNotional.IsPositive() {
		pow, err := notionalPower(annualizedNotional, adj.PriceImpactBeta)
		if err != nil {
			return sdkmath.LegacyDec{}, err
		}
		impact = adj.PriceImpactPhi.Mul(pow)
	}

	spread := sdkmath.LegacyZeroDec()
	if !adj.Spread.IsNil() {
		spread = adj.Spread
	}

	if size > 0 {
		return price.Mul(sdkmath.LegacyOneDec().Add(impact)).Add(spread), nil
	}
	out := price.Mul(sdkmath.LegacyOneDec().Sub(impact)).Sub(spread)
	if out.IsNegative() {
		return sdkmath.LegacyZeroDec(), nil
	}
	return out, nil
}

// notionalPower computes notional^beta. Whole exponents stay in fixed point;
// only fractional ones go through float64.
func notionalPower(notional, beta sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if beta.IsNil() {
		return notional, nil
	}
	if beta.IsInteger() && !beta.IsNegative() {
		exp := beta.TruncateInt()
		if !exp.IsUint64() {
			return sdkmath.LegacyDec{}, model.ErrMathOverflow.Wrapf("beta %s", beta)
		}
		return decPower(notional, exp.Uint64())
	}

	n, err := notional.Float64()
	if err != nil {
		return sdkmath.LegacyDec{}, model.ErrMathOverflow.Wrapf("annualized notional: %v", err)
	}
	b, err := beta.Float64()
	if err != nil {
		return sdkmath.LegacyDec{}, model.ErrMathOverflow.Wrapf("beta: %v", err)
	}
	pow := math.Pow(n, b)
	if math.IsInf(pow, 0) || math.IsNaN(pow) {
		return sdkmath.LegacyDec{}, model.ErrMathOverflow.Wrapf("notional^beta for %s", notional)
	}
	out, err := sdkmath.LegacyNewDecFromStr(strconv.FormatFloat(pow, 'f', 18, 64))
	if err != nil {
		return sdkmath.LegacyDec{}, model.ErrMathOverflow.Wrapf("notional^beta: %v", err)
	}
	return out, nil
}

// decPower turns the overflow panic of LegacyDec.Power into an error.
func decPower(d sdkmath.LegacyDec, n uint64) (out sdkmath.LegacyDec, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = model.ErrMathOverflow.Wrapf("%s^%d: %v", d, n, r)
		}
	}()
	return d.Power(n), nil
}
