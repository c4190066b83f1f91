package position

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"datedVamm/internal/model"
)

// Key identifies a range position.
type Key struct {
	AccountID *big.Int `json:"accountId"`
	MarketID  *big.Int `json:"marketId"`
	Maturity  uint32   `json:"maturity"`
	TickLower int32    `json:"tickLower"`
	TickUpper int32    `json:"tickUpper"`
}

var idArgs = mustArguments("uint128", "uint128", "uint32", "int24", "int24")

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("abi type %s: %v", t, err))
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// ID derives keccak256(abi.encode(account, market, maturity, lower, upper)).
func ID(k Key) (common.Hash, error) {
	if k.AccountID == nil || k.MarketID == nil {
		return common.Hash{}, model.ErrInvalidArgument.Wrap("position key: missing account or market id")
	}
	if k.AccountID.Sign() < 0 || k.MarketID.Sign() < 0 {
		return common.Hash{}, model.ErrInvalidArgument.Wrapf("position key: negative id (account %s, market %s)", k.AccountID, k.MarketID)
	}
	packed, err := idArgs.Pack(
		k.AccountID,
		k.MarketID,
		k.Maturity,
		big.NewInt(int64(k.TickLower)),
		big.NewInt(int64(k.TickUpper)),
	)
	if err != nil {
		return common.Hash{}, model.ErrInvalidArgument.Wrapf("pack position key: %v", err)
	}
	return crypto.Keccak256Hash(packed), nil
}
