package vammmath

import (
	"math/big"

	"github.com/holiman/uint256"

	"datedVamm/internal/model"
)

var (
	// Q96 is 1 in Q64.96 fixed point.
	Q96 = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	// Q128 is 1 in the X128 growth representation.
	Q128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

	// WAD is 1 in 18-decimal fixed point.
	WAD = big.NewInt(1_000_000_000_000_000_000)

	q128Big = Q128.ToBig()
	q192Big = new(big.Int).Lsh(big.NewInt(1), 192)

	maxUint128 = new(uint256.Int).Sub(Q128, uint256.NewInt(1))
)

// MulDiv returns floor(a*b/denominator) using a 512-bit intermediate product.
func MulDiv(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, model.ErrMathOverflow.Wrap("mulDiv by zero")
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, denominator)
	if overflow {
		return nil, model.ErrMathOverflow.Wrap("mulDiv result exceeds 256 bits")
	}
	return z, nil
}

// MulDivRoundingUp returns ceil(a*b/denominator).
func MulDivRoundingUp(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(a, b, denominator)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(a, b, denominator).IsZero() {
		return z, nil
	}
	if z.Eq(maxUint256) {
		return nil, model.ErrMathOverflow.Wrap("mulDiv rounding up")
	}
	return z.AddUint64(z, 1), nil
}

// MulDivSigned returns a*b/denominator truncated toward zero. Used for signed
// growth and balance conversions where the operands are unbounded.
func MulDivSigned(a, b, denominator *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, denominator)
}

// FromX128 scales a signed X128 per-liquidity growth by liquidity.
func FromX128(growthX128 *big.Int, liquidity *uint256.Int) *big.Int {
	return MulDivSigned(growthX128, liquidity.ToBig(), q128Big)
}

// ToX128 converts an absolute amount into per-liquidity growth in X128.
func ToX128(amount *big.Int, liquidity *uint256.Int) *big.Int {
	if liquidity.IsZero() {
		return new(big.Int)
	}
	return MulDivSigned(amount, q128Big, liquidity.ToBig())
}

// CheckUint128 rejects liquidity values wider than 128 bits.
func CheckUint128(v *uint256.Int) error {
	if v.Gt(maxUint128) {
		return model.ErrMathOverflow.Wrapf("liquidity %s exceeds uint128", dec(v))
	}
	return nil
}

// AddDelta applies a signed delta to an unsigned liquidity value and fails on
// underflow instead of wrapping.
func AddDelta(x *uint256.Int, delta *big.Int) (*uint256.Int, error) {
	out := new(big.Int).Add(x.ToBig(), delta)
	if out.Sign() < 0 {
		return nil, model.ErrNegativeLiquidity.Wrapf("%s%+d", dec(x), delta)
	}
	res, overflow := uint256.FromBig(out)
	if overflow {
		return nil, model.ErrMathOverflow.Wrap("liquidity add")
	}
	if err := CheckUint128(res); err != nil {
		return nil, err
	}
	return res, nil
}

func dec(x *uint256.Int) string {
	return x.ToBig().String()
}
