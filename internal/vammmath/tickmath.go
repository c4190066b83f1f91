package vammmath

import (
	"math/big"

	"github.com/holiman/uint256"

	"datedVamm/internal/model"
)

const (
	// MinTick is the minimum tick accepted by SqrtRatioAtTick.
	MinTick int32 = -887272
	// MaxTick is the maximum tick accepted by SqrtRatioAtTick.
	MaxTick int32 = 887272
)

var (
	// MinSqrtRatio equals SqrtRatioAtTick(MinTick).
	MinSqrtRatio = uint256.NewInt(4295128739)
	// MaxSqrtRatio equals SqrtRatioAtTick(MaxTick).
	MaxSqrtRatio = uint256.MustFromBig(fromDecimal("1461446703485210103287273052203988822378723970342"))

	maxUint256 = new(uint256.Int).SetAllOne()
	lowMask32  = uint256.NewInt(0xffffffff)

	// sqrt(1.0001^-(2^i)) in Q128.128 for bits 0..19 of |tick|.
	tickRatios = [20]*uint256.Int{
		fromHex("fffcb933bd6fad37aa2d162d1a594001"),
		fromHex("fff97272373d413259a46990580e213a"),
		fromHex("fff2e50f5f656932ef12357cf3c7fdcc"),
		fromHex("ffe5caca7e10e4e61c3624eaa0941cd0"),
		fromHex("ffcb9843d60f6159c9db58835c926644"),
		fromHex("ff973b41fa98c081472e6896dfb254c0"),
		fromHex("ff2ea16466c96a3843ec78b326b52861"),
		fromHex("fe5dee046a99a2a811c461f1969c3053"),
		fromHex("fcbe86c7900a88aedcffc83b479aa3a4"),
		fromHex("f987a7253ac413176f2b074cf7815e54"),
		fromHex("f3392b0822b70005940c7a398e4b70f3"),
		fromHex("e7159475a2c29b7443b29c7fa6e889d9"),
		fromHex("d097f3bdfd2022b8845ad8f792aa5825"),
		fromHex("a9f746462d870fdf8a65dc1f90e061e5"),
		fromHex("70d869a156d2a1b890bb3df62baf32f7"),
		fromHex("31be135f97d08fd981231505542fcfa6"),
		fromHex("9aa508b5b7a84e1c677de54f3e99bc9"),
		fromHex("5d6af8dedb81196699c329225ee604"),
		fromHex("2216e584f5fa1ea926041bedfe98"),
		fromHex("48a170391f7dc42444e8fa2"),
	}
)

// SqrtRatioAtTick returns sqrt(1.0001^tick) * 2^96, bit-exact with the
// reference Q64.96 implementation.
func SqrtRatioAtTick(tick int32) (*uint256.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, model.ErrTickOutOfBounds.Wrapf("tick %d", tick)
	}

	absTick := uint32(tick)
	if tick < 0 {
		absTick = uint32(-tick)
	}

	ratio := new(uint256.Int)
	if absTick&1 != 0 {
		ratio.Set(tickRatios[0])
	} else {
		ratio.Set(Q128)
	}
	for i := 1; i < len(tickRatios); i++ {
		if absTick&(1<<uint(i)) != 0 {
			ratio.Mul(ratio, tickRatios[i])
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	// Q128.128 -> Q64.96, rounding up so that TickAtSqrtRatio stays consistent.
	roundUp := !new(uint256.Int).And(ratio, lowMask32).IsZero()
	ratio.Rsh(ratio, 32)
	if roundUp {
		ratio.AddUint64(ratio, 1)
	}
	return ratio, nil
}

// TickAtSqrtRatio returns the greatest tick whose sqrt ratio is <= sqrtPriceX96.
func TickAtSqrtRatio(sqrtPriceX96 *uint256.Int) (int32, error) {
	if sqrtPriceX96.Lt(MinSqrtRatio) || !sqrtPriceX96.Lt(MaxSqrtRatio) {
		return 0, model.ErrSqrtPriceOutOfBounds.Wrapf("sqrt price %s", dec(sqrtPriceX96))
	}

	low, high := MinTick, MaxTick
	var tick int32
	for low <= high {
		mid := low + (high-low)/2
		ratio, err := SqrtRatioAtTick(mid)
		if err != nil {
			return 0, err
		}
		if !ratio.Gt(sqrtPriceX96) {
			tick = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return tick, nil
}

// MustSqrtRatioAtTick panics on an out-of-bounds tick. Only for constants and
// ticks that were validated earlier.
func MustSqrtRatioAtTick(tick int32) *uint256.Int {
	ratio, err := SqrtRatioAtTick(tick)
	if err != nil {
		panic(err)
	}
	return ratio
}

func fromHex(s string) *uint256.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("invalid hex constant " + s)
	}
	return uint256.MustFromBig(n)
}

func fromDecimal(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid decimal constant " + s)
	}
	return n
}
