package events

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var instanceArgs abi.Arguments

func init() {
	u128, err := abi.NewType("uint128", "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type uint128: %v", err))
	}
	u32, err := abi.NewType("uint32", "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type uint32: %v", err))
	}
	instanceArgs = abi.Arguments{{Type: u128}, {Type: u32}}
}

// InstanceAddress derives the journal address of a market+maturity
// instance: the low 20 bytes of keccak256(abi.encode(marketId, maturity)).
func InstanceAddress(marketID *big.Int, maturity uint32) (common.Address, error) {
	if marketID == nil {
		return common.Address{}, fmt.Errorf("market id is nil")
	}
	packed, err := instanceArgs.Pack(marketID, maturity)
	if err != nil {
		return common.Address{}, fmt.Errorf("pack instance: %w", err)
	}
	return common.BytesToAddress(crypto.Keccak256(packed)[12:]), nil
}
