package events

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const vammABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint128", "name": "accountId", "type": "uint128"},
      {"indexed": true, "internalType": "uint128", "name": "marketId", "type": "uint128"},
      {"indexed": true, "internalType": "uint32", "name": "maturity", "type": "uint32"},
      {"indexed": false, "internalType": "int256", "name": "executedBase", "type": "int256"},
      {"indexed": false, "internalType": "int256", "name": "executedQuote", "type": "int256"},
      {"indexed": false, "internalType": "uint256", "name": "annualizedNotional", "type": "uint256"},
      {"indexed": false, "internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
      {"indexed": false, "internalType": "uint128", "name": "liquidity", "type": "uint128"},
      {"indexed": false, "internalType": "int24", "name": "tick", "type": "int24"}
    ],
    "name": "TakerOrder",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint128", "name": "accountId", "type": "uint128"},
      {"indexed": true, "internalType": "uint128", "name": "marketId", "type": "uint128"},
      {"indexed": true, "internalType": "uint32", "name": "maturity", "type": "uint32"},
      {"indexed": false, "internalType": "int24", "name": "tickLower", "type": "int24"},
      {"indexed": false, "internalType": "int24", "name": "tickUpper", "type": "int24"},
      {"indexed": false, "internalType": "int128", "name": "liquidityDelta", "type": "int128"},
      {"indexed": false, "internalType": "int256", "name": "base", "type": "int256"}
    ],
    "name": "LiquidityChange",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint128", "name": "marketId", "type": "uint128"},
      {"indexed": true, "internalType": "uint32", "name": "maturity", "type": "uint32"},
      {"indexed": false, "internalType": "int24", "name": "tickSpacing", "type": "int24"},
      {"indexed": false, "internalType": "int24", "name": "minTick", "type": "int24"},
      {"indexed": false, "internalType": "int24", "name": "maxTick", "type": "int24"},
      {"indexed": false, "internalType": "bool", "name": "paused", "type": "bool"}
    ],
    "name": "PoolConfigured",
    "type": "event"
  }
]`

var (
	vammABI     abi.ABI
	vammABIOnce sync.Once
	vammABIErr  error
)

// VammABI returns the parsed engine event ABI.
func VammABI() (abi.ABI, error) {
	vammABIOnce.Do(func() {
		vammABI, vammABIErr = abi.JSON(strings.NewReader(vammABIJSON))
	})
	return vammABI, vammABIErr
}
