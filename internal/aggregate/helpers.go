package aggregate

import (
	"fmt"
	"math/big"
)

const ratioScale = 18

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

func absAdd(target *big.Int, value *big.Int) {
	if value == nil || target == nil {
		return
	}
	abs := new(big.Int).Abs(value)
	target.Add(target, abs)
}

func ratioString(num *big.Int, den *big.Int) string {
	if num == nil || num.Sign() == 0 || den == nil || den.Sign() == 0 {
		return ""
	}
	rat := new(big.Rat).SetFrac(num, den)
	return rat.FloatString(ratioScale)
}
